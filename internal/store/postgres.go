package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ponraviraj/gemini-chat/internal/models"
)

const uniqueViolation = "23505"

// PostgresStore implements UserStore and TranscriptStore against
// PostgreSQL. Username uniqueness is delegated to the primary-key
// constraint, so check-then-insert races collapse into ErrUserExists.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the users and chats tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			username   VARCHAR(50) PRIMARY KEY,
			password   VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ  DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS chats (
			seq          BIGSERIAL PRIMARY KEY,
			username     VARCHAR(50) NOT NULL,
			user_input   TEXT NOT NULL,
			bot_response TEXT NOT NULL,
			created_at   TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS chats_username_idx ON chats (username, seq)
	`)
	return err
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, hashedPassword string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, password)
		 VALUES ($1, $2)
		 RETURNING username, created_at`,
		username, hashedPassword,
	).Scan(&u.Username, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT username, password, created_at FROM users WHERE username = $1`, username,
	).Scan(&u.Username, &u.Password, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) Append(ctx context.Context, username, userMessage, botReply string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chats (username, user_input, bot_response) VALUES ($1, $2, $3)`,
		username, userMessage, botReply,
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadAll(ctx context.Context, username string) ([]models.Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT seq, username, user_input, bot_response, created_at
		 FROM chats WHERE username = $1 ORDER BY seq`, username)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *PostgresStore) LoadPage(ctx context.Context, username string, page, pageSize int) ([]models.Turn, error) {
	if page < 0 || pageSize <= 0 {
		return []models.Turn{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT seq, username, user_input, bot_response, created_at
		 FROM chats WHERE username = $1 ORDER BY seq
		 LIMIT $2 OFFSET $3`, username, pageSize, page*pageSize)
	if err != nil {
		return nil, fmt.Errorf("load transcript page: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func scanTurns(rows pgx.Rows) ([]models.Turn, error) {
	turns := []models.Turn{}
	for rows.Next() {
		var t models.Turn
		if err := rows.Scan(&t.Seq, &t.Username, &t.UserMessage, &t.BotReply, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read turns: %w", err)
	}
	return turns, nil
}
