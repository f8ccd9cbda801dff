package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ponraviraj/gemini-chat/internal/auth"
	"github.com/ponraviraj/gemini-chat/internal/models"
	"github.com/ponraviraj/gemini-chat/internal/store"
)

const defaultPageSize = 10

// ObjectStore keeps transcript export snapshots.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, string, error)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Handler holds the chat HTTP handlers. All routes sit behind the auth
// middleware, so the session is always present in the request context.
type Handler struct {
	svc         *Service
	transcripts store.TranscriptStore
	sessions    auth.Sessions
	exports     ObjectStore
	log         zerolog.Logger
}

func NewHandler(svc *Service, transcripts store.TranscriptStore, sessions auth.Sessions, exports ObjectStore, log zerolog.Logger) *Handler {
	return &Handler{
		svc:         svc,
		transcripts: transcripts,
		sessions:    sessions,
		exports:     exports,
		log:         log,
	}
}

// Send runs one conversation exchange.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	sid, sess, _ := auth.FromContext(r.Context())

	var req models.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, `{"error":"message is required"}`, http.StatusBadRequest)
		return
	}

	reply, err := h.svc.Send(r.Context(), sid, sess.Username, req.Message)
	if err != nil {
		if errors.Is(err, ErrModelUnavailable) {
			h.log.Warn().Err(err).Str("username", sess.Username).Msg("model call failed")
			http.Error(w, `{"error":"the model is unavailable, please try again"}`, http.StatusBadGateway)
			return
		}
		h.log.Error().Err(err).Str("username", sess.Username).Msg("send failed")
		http.Error(w, `{"error":"storage error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, models.SendResponse{Reply: reply})
}

// History returns the transcript, oldest first. Without a page parameter
// the full history is returned; with one, the requested slice. The
// pagination cursor is remembered in the session.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	sid, sess, _ := auth.FromContext(r.Context())

	var (
		turns []models.Turn
		err   error
	)
	page := -1
	pageSize := defaultPageSize
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, convErr := strconv.Atoi(v); convErr == nil && n > 0 && n <= 100 {
			pageSize = n
		}
	}
	if v := r.URL.Query().Get("page"); v != "" {
		if n, convErr := strconv.Atoi(v); convErr == nil && n >= 0 {
			page = n
		}
	}

	if page >= 0 {
		turns, err = h.transcripts.LoadPage(r.Context(), sess.Username, page, pageSize)
	} else {
		turns, err = h.transcripts.LoadAll(r.Context(), sess.Username)
	}
	if err != nil {
		h.log.Error().Err(err).Str("username", sess.Username).Msg("load history failed")
		http.Error(w, `{"error":"storage error"}`, http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []models.Turn{}
	}

	if page >= 0 && page != sess.PageIndex {
		sess.PageIndex = page
		if err := h.sessions.Save(r.Context(), sid, sess); err != nil {
			h.log.Warn().Err(err).Msg("save pagination cursor failed")
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"turns":           turns,
		"page":            page,
		"page_size":       pageSize,
		"history_visible": sess.HistoryVisible,
	})
}

// ToggleHistory flips the history-panel visibility flag.
func (h *Handler) ToggleHistory(w http.ResponseWriter, r *http.Request) {
	sid, sess, _ := auth.FromContext(r.Context())

	sess.HistoryVisible = !sess.HistoryVisible
	if err := h.sessions.Save(r.Context(), sid, sess); err != nil {
		http.Error(w, `{"error":"session update failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// CreateExport snapshots the full transcript into object storage.
func (h *Handler) CreateExport(w http.ResponseWriter, r *http.Request) {
	_, sess, _ := auth.FromContext(r.Context())

	turns, err := h.transcripts.LoadAll(r.Context(), sess.Username)
	if err != nil {
		http.Error(w, `{"error":"storage error"}`, http.StatusInternalServerError)
		return
	}

	snapshot, err := json.MarshalIndent(map[string]interface{}{
		"username":    sess.Username,
		"exported_at": time.Now().UTC(),
		"turns":       turns,
	}, "", "  ")
	if err != nil {
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	key := exportKey(sess.Username)
	if err := h.exports.Upload(r.Context(), key, snapshot, "application/json"); err != nil {
		h.log.Error().Err(err).Str("username", sess.Username).Msg("export upload failed")
		http.Error(w, `{"error":"export failed"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"object_key": key})
}

// DownloadExport streams the latest transcript snapshot.
func (h *Handler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	_, sess, _ := auth.FromContext(r.Context())

	data, ct, err := h.exports.Download(r.Context(), exportKey(sess.Username))
	if err != nil {
		http.Error(w, `{"error":"no export available"}`, http.StatusNotFound)
		return
	}
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", "attachment; filename=transcript.json")
	w.Write(data)
}

// Traces returns the newest model-call traces for the current user.
func (h *Handler) Traces(w http.ResponseWriter, r *http.Request) {
	_, sess, _ := auth.FromContext(r.Context())

	recs, err := h.svc.Traces(r.Context(), sess.Username, 50)
	if err != nil {
		http.Error(w, `{"error":"storage error"}`, http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []models.TraceRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"traces": recs})
}

// Quiz returns a model-generated trivia question.
func (h *Handler) Quiz(w http.ResponseWriter, r *http.Request) {
	sid, _, _ := auth.FromContext(r.Context())

	question, err := h.svc.QuizQuestion(r.Context(), sid)
	if err != nil {
		h.log.Warn().Err(err).Msg("quiz question failed")
		http.Error(w, `{"error":"the model is unavailable, please try again"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"question": question})
}

// QuizAnswer grades the submitted answer.
func (h *Handler) QuizAnswer(w http.ResponseWriter, r *http.Request) {
	sid, _, _ := auth.FromContext(r.Context())

	var req models.QuizAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Answer == "" {
		http.Error(w, `{"error":"answer is required"}`, http.StatusBadRequest)
		return
	}

	correct, expected, err := h.svc.QuizAnswer(sid, req.Answer)
	if err != nil {
		http.Error(w, `{"error":"ask for a question first"}`, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"correct":  correct,
		"expected": expected,
	})
}

func exportKey(username string) string {
	return fmt.Sprintf("%s/transcript.json", username)
}
