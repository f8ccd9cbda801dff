package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/ponraviraj/gemini-chat/internal/metrics"
	"github.com/ponraviraj/gemini-chat/internal/models"
	"github.com/ponraviraj/gemini-chat/internal/store"
)

var validUsername = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

// EngineDropper releases per-session conversation state on logout.
type EngineDropper interface {
	Drop(sessionID string)
}

// Handler holds auth-related HTTP handlers.
type Handler struct {
	users       store.UserStore
	transcripts store.TranscriptStore
	sessions    Sessions
	engines     EngineDropper
	log         zerolog.Logger
	m           *metrics.Metrics
}

func NewHandler(users store.UserStore, transcripts store.TranscriptStore, sessions Sessions, engines EngineDropper, log zerolog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		users:       users,
		transcripts: transcripts,
		sessions:    sessions,
		engines:     engines,
		log:         log,
		m:           m,
	}
}

// Register creates a new account. The caller stays anonymous and is asked
// to log in; empty-field validation runs before the uniqueness check.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		h.m.SignupsTotal.WithLabelValues(metrics.StatusInvalid).Inc()
		http.Error(w, `{"error":"username and password are required"}`, http.StatusBadRequest)
		return
	}
	if !validUsername.MatchString(req.Username) {
		h.m.SignupsTotal.WithLabelValues(metrics.StatusInvalid).Inc()
		http.Error(w, `{"error":"username may only contain letters, digits, - and _"}`, http.StatusBadRequest)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.Username, string(hashed))
	if err != nil {
		if errors.Is(err, store.ErrUserExists) {
			h.m.SignupsTotal.WithLabelValues(metrics.StatusTaken).Inc()
			http.Error(w, `{"error":"username already taken"}`, http.StatusConflict)
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("create user failed")
		h.m.SignupsTotal.WithLabelValues(metrics.StatusError).Inc()
		http.Error(w, `{"error":"storage error"}`, http.StatusInternalServerError)
		return
	}

	h.m.SignupsTotal.WithLabelValues(metrics.StatusOK).Inc()
	h.log.Info().Str("username", user.Username).Msg("account created")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"username": user.Username,
		"message":  "account created, please log in",
	})
}

// Login authenticates a user, creates a session in the chat state, and
// replays the persisted transcript. Unknown username and wrong password
// produce the identical response.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		http.Error(w, `{"error":"username and password are required"}`, http.StatusBadRequest)
		return
	}

	user, err := h.users.GetUser(r.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.log.Error().Err(err).Msg("load user failed")
			http.Error(w, `{"error":"storage error"}`, http.StatusInternalServerError)
			return
		}
		h.m.LoginsTotal.WithLabelValues(metrics.StatusRejected).Inc()
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		h.m.LoginsTotal.WithLabelValues(metrics.StatusRejected).Inc()
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	history, err := h.transcripts.LoadAll(r.Context(), user.Username)
	if err != nil {
		h.log.Error().Err(err).Str("username", user.Username).Msg("load transcript failed")
		http.Error(w, `{"error":"storage error"}`, http.StatusInternalServerError)
		return
	}

	sid, err := h.sessions.Create(r.Context(), Session{
		Username:       user.Username,
		Page:           PageChat,
		HistoryVisible: true,
	})
	if err != nil {
		http.Error(w, `{"error":"session creation failed"}`, http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionTTL / time.Second),
	})

	h.m.LoginsTotal.WithLabelValues(metrics.StatusOK).Inc()
	h.log.Info().Str("username", user.Username).Msg("login")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"username": user.Username,
		"page":     PageChat,
		"history":  history,
	})
}

// Logout destroys the session and its conversation engine.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(SessionCookie)
	if err == nil {
		if err := h.sessions.Delete(r.Context(), cookie.Value); err != nil {
			h.log.Warn().Err(err).Msg("session delete failed")
		}
		h.engines.Drop(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"message":"logged out","page":"auth"}`))
}

// Me returns the currently authenticated identity.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := FromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"username": sess.Username})
}

// State reports which page the frontend should render. Anonymous callers
// get the auth page; authenticated ones get their full session state.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	cookie, err := r.Cookie(SessionCookie)
	if err == nil {
		sess, err := h.sessions.Get(r.Context(), cookie.Value)
		if err == nil && sess != nil {
			json.NewEncoder(w).Encode(sess)
			return
		}
	}
	json.NewEncoder(w).Encode(Session{Page: PageAuth})
}
