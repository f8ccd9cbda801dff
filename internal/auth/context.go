package auth

import "context"

type ctxKey int

const sessionKey ctxKey = 0

type sessionEntry struct {
	id   string
	sess Session
}

// NewContext attaches an authenticated session to the request context.
func NewContext(ctx context.Context, sessionID string, sess Session) context.Context {
	return context.WithValue(ctx, sessionKey, sessionEntry{id: sessionID, sess: sess})
}

// FromContext returns the session placed by the auth middleware.
func FromContext(ctx context.Context) (sessionID string, sess Session, ok bool) {
	e, ok := ctx.Value(sessionKey).(sessionEntry)
	if !ok {
		return "", Session{}, false
	}
	return e.id, e.sess, true
}
