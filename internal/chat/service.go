package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ponraviraj/gemini-chat/internal/llm"
	"github.com/ponraviraj/gemini-chat/internal/metrics"
	"github.com/ponraviraj/gemini-chat/internal/models"
	"github.com/ponraviraj/gemini-chat/internal/store"
)

// TraceStore records hosted-model invocations.
type TraceStore interface {
	Record(ctx context.Context, rec models.TraceRecord) error
	RecentByUser(ctx context.Context, username string, limit int) ([]models.TraceRecord, error)
}

// Service owns the per-session conversation engines and persists
// completed turns. Engines are keyed by session ID, so a fresh login
// always gets a fresh engine rebuilt from the transcript store.
type Service struct {
	client      llm.Client
	transcripts store.TranscriptStore
	traces      TraceStore
	log         zerolog.Logger
	m           *metrics.Metrics

	mu      sync.Mutex
	engines map[string]*Engine
	quizzes map[string]string // session id -> expected quiz answer
}

func NewService(client llm.Client, transcripts store.TranscriptStore, traces TraceStore, log zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		client:      client,
		transcripts: transcripts,
		traces:      traces,
		log:         log,
		m:           m,
		engines:     make(map[string]*Engine),
		quizzes:     make(map[string]string),
	}
}

// Send runs one exchange: compute the reply, persist the turn, then
// commit it to the engine buffer. A model failure leaves both the
// transcript and the buffer untouched.
func (s *Service) Send(ctx context.Context, sessionID, username, message string) (string, error) {
	eng, err := s.engineFor(ctx, sessionID, username)
	if err != nil {
		return "", err
	}

	start := time.Now()
	reply, err := eng.Send(ctx, message)
	if err != nil {
		s.m.SendsTotal.WithLabelValues(metrics.StatusModelError).Inc()
		s.recordTrace(username, message, "", "", err, time.Since(start))
		return "", err
	}
	if reply.FromModel {
		s.m.ObserveModelCall(time.Since(start))
		s.recordTrace(username, message, reply.Content, reply.Usage.Model, nil, time.Since(start))
	}

	if err := s.transcripts.Append(ctx, username, message, reply.Content); err != nil {
		s.m.SendsTotal.WithLabelValues(metrics.StatusStorageError).Inc()
		return "", fmt.Errorf("persist turn: %w", err)
	}
	eng.Commit(message, reply.Content)

	if reply.FromModel {
		s.m.SendsTotal.WithLabelValues(metrics.StatusOK).Inc()
	} else {
		s.m.SendsTotal.WithLabelValues(metrics.StatusShortCircuit).Inc()
	}
	return reply.Content, nil
}

// Traces returns the newest model-call traces for a user. Empty when
// tracing is disabled.
func (s *Service) Traces(ctx context.Context, username string, limit int) ([]models.TraceRecord, error) {
	if s.traces == nil {
		return []models.TraceRecord{}, nil
	}
	return s.traces.RecentByUser(ctx, username, limit)
}

// Drop discards the per-session engine and any pending quiz question.
// Called on logout; the persisted transcript is unaffected.
func (s *Service) Drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.engines, sessionID)
	delete(s.quizzes, sessionID)
}

func (s *Service) engineFor(ctx context.Context, sessionID, username string) (*Engine, error) {
	s.mu.Lock()
	if eng, ok := s.engines[sessionID]; ok {
		s.mu.Unlock()
		return eng, nil
	}
	s.mu.Unlock()

	history, err := s.transcripts.LoadAll(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("seed engine: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if eng, ok := s.engines[sessionID]; ok {
		return eng, nil
	}
	eng := NewEngine(username, s.client, history)
	s.engines[sessionID] = eng
	return eng, nil
}

// recordTrace is best-effort: a trace-store failure must not fail the
// chat operation.
func (s *Service) recordTrace(username, prompt, reply, model string, sendErr error, latency time.Duration) {
	if s.traces == nil {
		return
	}
	rec := models.TraceRecord{
		Username:  username,
		Prompt:    prompt,
		Reply:     reply,
		Model:     model,
		LatencyMS: latency.Milliseconds(),
		CreatedAt: time.Now().UTC(),
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.traces.Record(ctx, rec); err != nil {
		s.log.Warn().Err(err).Str("username", username).Msg("trace record failed")
	}
}
