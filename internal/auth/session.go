package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	SessionTTL    = 24 * time.Hour
	SessionCookie = "session_id"
)

// Page is the view the frontend should render for a session.
type Page string

const (
	PageAuth Page = "auth"
	PageChat Page = "chat"
)

// Session is the ephemeral per-browser state: two-state machine between
// Anonymous (no session, page=auth) and Authenticated (page=chat), plus
// the history-panel flag and pagination cursor.
type Session struct {
	Username       string `json:"username"`
	Page           Page   `json:"page"`
	HistoryVisible bool   `json:"history_visible"`
	PageIndex      int    `json:"page_index"`
}

// Sessions is the session persistence contract. The Redis implementation
// below is used in production; tests substitute an in-memory fake.
type Sessions interface {
	Create(ctx context.Context, sess Session) (string, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, sessionID string, sess Session) error
	Delete(ctx context.Context, sessionID string) error
}

// SessionStore keeps sessions in Redis as JSON values keyed by a uuid.
type SessionStore struct {
	rdb *redis.Client
}

func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{rdb: rdb}
}

// Create stores a new session and returns its ID.
func (s *SessionStore) Create(ctx context.Context, sess Session) (string, error) {
	sid := uuid.New().String()
	if err := s.Save(ctx, sid, sess); err != nil {
		return "", err
	}
	return sid, nil
}

// Get returns the session, or nil if not found / expired.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	val, err := s.rdb.Get(ctx, "session:"+sessionID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// Save overwrites the session and refreshes its TTL.
func (s *SessionStore) Save(ctx context.Context, sessionID string, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.rdb.Set(ctx, "session:"+sessionID, data, SessionTTL).Err()
}

// Delete removes a session.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, "session:"+sessionID).Err()
}
