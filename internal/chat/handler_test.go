package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ponraviraj/gemini-chat/internal/auth"
	"github.com/ponraviraj/gemini-chat/internal/llm"
	"github.com/ponraviraj/gemini-chat/internal/metrics"
	"github.com/ponraviraj/gemini-chat/internal/middleware"
	"github.com/ponraviraj/gemini-chat/internal/models"
	"github.com/ponraviraj/gemini-chat/internal/store"
)

// memSessions is an in-memory auth.Sessions.
type memSessions struct {
	mu   sync.Mutex
	next int
	data map[string]auth.Session
}

func newMemSessions() *memSessions {
	return &memSessions{data: make(map[string]auth.Session)}
}

func (m *memSessions) Create(ctx context.Context, sess auth.Session) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	sid := fmt.Sprintf("sid-%d", m.next)
	m.data[sid] = sess
	return sid, nil
}

func (m *memSessions) Get(ctx context.Context, sid string) (*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.data[sid]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (m *memSessions) Save(ctx context.Context, sid string, sess auth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[sid] = sess
	return nil
}

func (m *memSessions) Delete(ctx context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, sid)
	return nil
}

// memObjects is an in-memory ObjectStore.
type memObjects struct {
	mu    sync.Mutex
	data  map[string][]byte
	types map[string]string
}

func newMemObjects() *memObjects {
	return &memObjects{data: make(map[string][]byte), types: make(map[string]string)}
}

func (m *memObjects) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memObjects) Download(ctx context.Context, key string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return nil, "", errors.New("object not found")
	}
	return data, m.types[key], nil
}

type testApp struct {
	srv     *httptest.Server
	client  *http.Client
	objects *memObjects
}

// newTestApp wires the full router the way cmd/server does, with
// in-memory sessions/objects, a temp-dir file store, and the given model
// client.
func newTestApp(t *testing.T, modelClient llm.Client) *testApp {
	t.Helper()

	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	sessions := newMemSessions()
	objects := newMemObjects()
	traces := &memTraces{}
	m := metrics.New(prometheus.NewRegistry())

	svc := NewService(modelClient, fs, traces, zerolog.Nop(), m)
	authHandler := auth.NewHandler(fs, fs, sessions, svc, zerolog.Nop(), m)
	chatHandler := NewHandler(svc, fs, sessions, objects, zerolog.Nop())

	r := chi.NewRouter()
	r.Get("/api/session", authHandler.State)
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.With(middleware.RequireAuth(sessions)).Get("/me", authHandler.Me)
	})
	r.Route("/api/chat", func(r chi.Router) {
		r.Use(middleware.RequireAuth(sessions))
		r.Post("/send", chatHandler.Send)
		r.Get("/history", chatHandler.History)
		r.Post("/history/visibility", chatHandler.ToggleHistory)
		r.Post("/export", chatHandler.CreateExport)
		r.Get("/export", chatHandler.DownloadExport)
		r.Get("/traces", chatHandler.Traces)
	})
	r.Route("/api/quiz", func(r chi.Router) {
		r.Use(middleware.RequireAuth(sessions))
		r.Get("/", chatHandler.Quiz)
		r.Post("/answer", chatHandler.QuizAnswer)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testApp{
		srv:     srv,
		client:  &http.Client{Jar: jar},
		objects: objects,
	}
}

func (a *testApp) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := a.client.Post(a.srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func (a *testApp) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := a.client.Get(a.srv.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

type historyResponse struct {
	Turns          []models.Turn `json:"turns"`
	Page           int           `json:"page"`
	PageSize       int           `json:"page_size"`
	HistoryVisible bool          `json:"history_visible"`
}

func (a *testApp) register(t *testing.T, username, password string) *http.Response {
	return a.post(t, "/api/auth/register", models.RegisterRequest{Username: username, Password: password})
}

func (a *testApp) login(t *testing.T, username, password string) *http.Response {
	return a.post(t, "/api/auth/login", models.LoginRequest{Username: username, Password: password})
}

func TestEndToEndTranscriptSurvivesLogout(t *testing.T) {
	app := newTestApp(t, &scriptedClient{replies: []string{"R1"}})

	resp := app.register(t, "bob", "pw1")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	var loginBody struct {
		Username string        `json:"username"`
		History  []models.Turn `json:"history"`
	}
	resp = app.login(t, "bob", "pw1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &loginBody)
	assert.Equal(t, "bob", loginBody.Username)
	assert.Empty(t, loginBody.History)

	var sendBody models.SendResponse
	resp = app.post(t, "/api/chat/send", models.SendRequest{Message: "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &sendBody)
	assert.Equal(t, "R1", sendBody.Reply)

	var hist historyResponse
	resp = app.get(t, "/api/chat/history")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &hist)
	require.Len(t, hist.Turns, 1)
	assert.Equal(t, "hello", hist.Turns[0].UserMessage)
	assert.Equal(t, "R1", hist.Turns[0].BotReply)

	resp = app.post(t, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// logged out: chat routes reject
	resp = app.get(t, "/api/chat/history")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// a fresh login replays the persisted transcript
	resp = app.login(t, "bob", "pw1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &loginBody)
	require.Len(t, loginBody.History, 1)
	assert.Equal(t, "hello", loginBody.History[0].UserMessage)
	assert.Equal(t, "R1", loginBody.History[0].BotReply)
}

func TestDuplicateSignupKeepsOriginalPassword(t *testing.T) {
	app := newTestApp(t, &scriptedClient{})

	resp := app.register(t, "bob", "pw1")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = app.register(t, "bob", "pw2")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// stored password is still pw1
	resp = app.login(t, "bob", "pw2")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = app.login(t, "bob", "pw1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestSendModelUnavailable(t *testing.T) {
	app := newTestApp(t, &scriptedClient{errs: []error{errors.New("down")}})

	app.register(t, "bob", "pw").Body.Close()
	app.login(t, "bob", "pw").Body.Close()

	resp := app.post(t, "/api/chat/send", models.SendRequest{Message: "hello"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	resp.Body.Close()

	// the failed attempt is not persisted
	var hist historyResponse
	resp = app.get(t, "/api/chat/history")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &hist)
	assert.Empty(t, hist.Turns)
}

func TestNameShortCircuitOverHTTP(t *testing.T) {
	app := newTestApp(t, failClient{t: t})

	app.register(t, "alice", "pw").Body.Close()
	app.login(t, "alice", "pw").Body.Close()

	var sendBody models.SendResponse
	resp := app.post(t, "/api/chat/send", models.SendRequest{Message: "What is my name?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &sendBody)
	assert.Equal(t, "Your name is alice.", sendBody.Reply)
}

func TestHistoryPaginationOverHTTP(t *testing.T) {
	client := &scriptedClient{}
	for i := 0; i < 25; i++ {
		client.replies = append(client.replies, fmt.Sprintf("r-%d", i))
	}
	app := newTestApp(t, client)

	app.register(t, "bob", "pw").Body.Close()
	app.login(t, "bob", "pw").Body.Close()

	for i := 0; i < 25; i++ {
		resp := app.post(t, "/api/chat/send", models.SendRequest{Message: fmt.Sprintf("m-%d", i)})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	// concatenating pages of 10 reconstructs the full history
	var joined []models.Turn
	for page := 0; ; page++ {
		var hist historyResponse
		resp := app.get(t, fmt.Sprintf("/api/chat/history?page=%d&page_size=10", page))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		decodeBody(t, resp, &hist)
		if len(hist.Turns) == 0 {
			break
		}
		joined = append(joined, hist.Turns...)
	}

	require.Len(t, joined, 25)
	for i, turn := range joined {
		assert.Equal(t, fmt.Sprintf("m-%d", i), turn.UserMessage)
	}
}

func TestToggleHistoryVisibility(t *testing.T) {
	app := newTestApp(t, &scriptedClient{})

	app.register(t, "bob", "pw").Body.Close()
	app.login(t, "bob", "pw").Body.Close()

	var sess auth.Session
	resp := app.post(t, "/api/chat/history/visibility", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &sess)
	assert.False(t, sess.HistoryVisible)

	resp = app.post(t, "/api/chat/history/visibility", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &sess)
	assert.True(t, sess.HistoryVisible)
}

func TestExportRoundTrip(t *testing.T) {
	app := newTestApp(t, &scriptedClient{replies: []string{"R1"}})

	app.register(t, "bob", "pw").Body.Close()
	app.login(t, "bob", "pw").Body.Close()

	resp := app.post(t, "/api/chat/send", models.SendRequest{Message: "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// no snapshot yet
	resp = app.get(t, "/api/chat/export")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	var created map[string]string
	resp = app.post(t, "/api/chat/export", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	decodeBody(t, resp, &created)
	assert.Equal(t, "bob/transcript.json", created["object_key"])

	resp = app.get(t, "/api/chat/export")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snapshot struct {
		Username string        `json:"username"`
		Turns    []models.Turn `json:"turns"`
	}
	decodeBody(t, resp, &snapshot)
	assert.Equal(t, "bob", snapshot.Username)
	require.Len(t, snapshot.Turns, 1)
	assert.Equal(t, "hello", snapshot.Turns[0].UserMessage)
}

func TestQuizOverHTTP(t *testing.T) {
	app := newTestApp(t, &scriptedClient{replies: []string{"Question: Capital of France?\nAnswer: Paris"}})

	app.register(t, "bob", "pw").Body.Close()
	app.login(t, "bob", "pw").Body.Close()

	var q map[string]string
	resp := app.get(t, "/api/quiz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &q)
	assert.Equal(t, "Capital of France?", q["question"])

	var graded struct {
		Correct  bool   `json:"correct"`
		Expected string `json:"expected"`
	}
	resp = app.post(t, "/api/quiz/answer", models.QuizAnswerRequest{Answer: "paris"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &graded)
	assert.True(t, graded.Correct)
	assert.Equal(t, "Paris", graded.Expected)

	// no pending question any more
	resp = app.post(t, "/api/quiz/answer", models.QuizAnswerRequest{Answer: "paris"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestChatRequiresAuth(t *testing.T) {
	app := newTestApp(t, &scriptedClient{})

	resp := app.post(t, "/api/chat/send", models.SendRequest{Message: "hi"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}
