package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/ponraviraj/gemini-chat/internal/models"
)

// usernamePattern keeps usernames safe to embed in file names.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

// FileStore implements UserStore and TranscriptStore on flat JSON files:
// one credential index (users.json) plus one transcript file per user.
// All writes go through a temp-file rename so a crash never leaves a
// half-written document behind.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "transcripts"), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

type userRecord struct {
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *FileStore) usersPath() string {
	return filepath.Join(s.dir, "users.json")
}

func (s *FileStore) transcriptPath(username string) string {
	return filepath.Join(s.dir, "transcripts", username+".json")
}

func (s *FileStore) CreateUser(ctx context.Context, username, hashedPassword string) (*models.User, error) {
	if !usernamePattern.MatchString(username) {
		return nil, fmt.Errorf("invalid username %q", username)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers()
	if err != nil {
		return nil, err
	}
	if _, ok := users[username]; ok {
		return nil, ErrUserExists
	}
	rec := userRecord{Password: hashedPassword, CreatedAt: time.Now().UTC()}
	users[username] = rec
	if err := s.saveUsers(users); err != nil {
		return nil, err
	}
	return &models.User{Username: username, Password: rec.Password, CreatedAt: rec.CreatedAt}, nil
}

func (s *FileStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers()
	if err != nil {
		return nil, err
	}
	rec, ok := users[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &models.User{Username: username, Password: rec.Password, CreatedAt: rec.CreatedAt}, nil
}

func (s *FileStore) Append(ctx context.Context, username, userMessage, botReply string) error {
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("invalid username %q", username)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, err := s.loadTurns(username)
	if err != nil {
		return err
	}
	turns = append(turns, models.Turn{
		Seq:         int64(len(turns) + 1),
		Username:    username,
		UserMessage: userMessage,
		BotReply:    botReply,
		CreatedAt:   time.Now().UTC(),
	})
	return s.writeJSON(s.transcriptPath(username), turns)
}

func (s *FileStore) LoadAll(ctx context.Context, username string) ([]models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadTurns(username)
}

func (s *FileStore) LoadPage(ctx context.Context, username string, page, pageSize int) ([]models.Turn, error) {
	if page < 0 || pageSize <= 0 {
		return []models.Turn{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, err := s.loadTurns(username)
	if err != nil {
		return nil, err
	}
	start := page * pageSize
	if start >= len(turns) {
		return []models.Turn{}, nil
	}
	end := start + pageSize
	if end > len(turns) {
		end = len(turns)
	}
	return turns[start:end], nil
}

func (s *FileStore) loadUsers() (map[string]userRecord, error) {
	users := map[string]userRecord{}
	if err := s.readJSON(s.usersPath(), &users); err != nil {
		return nil, fmt.Errorf("load users index: %w", err)
	}
	return users, nil
}

func (s *FileStore) saveUsers(users map[string]userRecord) error {
	if err := s.writeJSON(s.usersPath(), users); err != nil {
		return fmt.Errorf("save users index: %w", err)
	}
	return nil
}

func (s *FileStore) loadTurns(username string) ([]models.Turn, error) {
	turns := []models.Turn{}
	if err := s.readJSON(s.transcriptPath(username), &turns); err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	return turns, nil
}

// readJSON decodes path into v; a missing or empty file leaves v as-is.
func (s *FileStore) readJSON(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(v); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return nil
}

func (s *FileStore) writeJSON(path string, v interface{}) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
