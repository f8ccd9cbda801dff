// Package store holds the credential and transcript persistence layer.
// Two drivers implement the interfaces below: PostgreSQL (default) and a
// JSON file store for single-node setups.
package store

import (
	"context"
	"errors"

	"github.com/ponraviraj/gemini-chat/internal/models"
)

var (
	// ErrUserExists signals a duplicate username at signup.
	ErrUserExists = errors.New("user already exists")
	// ErrNotFound signals an unknown username or missing object.
	ErrNotFound = errors.New("not found")
)

// UserStore persists username/password pairs. CreateUser must be atomic
// with respect to the uniqueness check: concurrent signups with the same
// name resolve to exactly one row plus ErrUserExists.
type UserStore interface {
	CreateUser(ctx context.Context, username, hashedPassword string) (*models.User, error)
	GetUser(ctx context.Context, username string) (*models.User, error)
}

// TranscriptStore persists the append-only per-user chat log, oldest
// first. LoadPage returns the slice [page*pageSize, (page+1)*pageSize) of
// the full history; loads are side-effect-free.
type TranscriptStore interface {
	Append(ctx context.Context, username, userMessage, botReply string) error
	LoadAll(ctx context.Context, username string) ([]models.Turn, error)
	LoadPage(ctx context.Context, username string, page, pageSize int) ([]models.Turn, error)
}
