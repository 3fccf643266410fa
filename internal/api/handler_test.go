//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/scrum-ai/internal/backend"
	"github.com/ashureev/scrum-ai/internal/conversation"
	"github.com/ashureev/scrum-ai/internal/form"
	"github.com/ashureev/scrum-ai/internal/store"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{conversation.ErrEmptyMessage, http.StatusBadRequest},
		{fmt.Errorf("%w: menu option 9", conversation.ErrNoDirective), http.StatusBadRequest},
		{conversation.ErrFormEmpty, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: x", form.ErrUnknownField), http.StatusUnprocessableEntity},
		{conversation.ErrBusy, http.StatusConflict},
		{conversation.ErrStaleProduct, http.StatusConflict},
		{conversation.ErrClosed, http.StatusServiceUnavailable},
		{fmt.Errorf("load: %w", &backend.Error{Status: 404}), http.StatusNotFound},
		{&backend.Error{Code: backend.CodeTransport}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys are independent")

	rl.evict(time.Now().Add(2 * time.Minute))
	assert.True(t, rl.Allow("a"))
}

// fakeBackendServer emulates the SCRUM AI REST backend.
type fakeBackendServer struct {
	mu       sync.Mutex
	messages []string
	reply    string
}

func (f *fakeBackendServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/ai/chat", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.messages = append(f.messages, req.Message)
		reply := f.reply
		f.mu.Unlock()
		JSON(w, http.StatusOK, map[string]any{"response": reply, "session_id": "s-1", "is_new_session": true})
	})
	mux.HandleFunc("GET /api/v1/products/{id}/architecture/exists", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]bool{"exists": r.PathValue("id") == "p-arch"})
	})
	mux.HandleFunc("GET /api/v1/ai/conversations", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, []map[string]any{{"session_id": "s-1", "title": "hola", "message_count": 2}})
	})
	return mux
}

func (f *fakeBackendServer) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

type testEnv struct {
	server  *httptest.Server
	client  *http.Client
	backend *fakeBackendServer
}

func newTestEnv(t *testing.T, limit int) *testEnv {
	t.Helper()

	fb := &fakeBackendServer{reply: "¿En qué área deseas trabajar? Responde con el número o nombre."}
	backendSrv := httptest.NewServer(fb.handler())
	t.Cleanup(backendSrv.Close)

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	registry := conversation.NewRegistry(conversation.Dependencies{
		Backend: backend.NewClient(backend.Config{BaseURL: backendSrv.URL, Timeout: 5 * time.Second}, nil),
		Store:   repo,
	})
	t.Cleanup(registry.Close)

	rl := NewRateLimiter(limit, time.Minute)
	t.Cleanup(rl.Stop)

	srv := httptest.NewServer(NewRouter(RouterConfig{
		Registry:       registry,
		Users:          repo,
		DB:             repo,
		RateLimiter:    rl,
		AllowedOrigins: []string{"http://localhost:5173"},
		IsDev:          true,
	}))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{server: srv, client: &http.Client{Jar: jar}, backend: fb}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestAssistantChatFlow(t *testing.T) {
	env := newTestEnv(t, 10)

	resp, state := env.do(t, http.MethodGet, "/api/assistant/state", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, state["messages"])

	resp, state = env.do(t, http.MethodPost, "/api/assistant/messages", map[string]string{"text": "Quiero editar"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "s-1", state["session_id"])
	assert.Equal(t, true, state["chooser_open"])
	msgs := state["messages"].([]any)
	require.Len(t, msgs, 2)
	reply := msgs[1].(map[string]any)
	directive := reply["directive"].(map[string]any)
	assert.Equal(t, "section_menu", directive["kind"])

	resp, _ = env.do(t, http.MethodPost, "/api/assistant/menu/3", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Quiero editar", "3️⃣ System Modules - Componentes y lógica de negocio"}, env.backend.sent())

	resp, _ = env.do(t, http.MethodPost, "/api/assistant/menu/9", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, "/api/assistant/menu/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, "/api/assistant/messages", map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, "/api/assistant/form/submit", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAssistantGuardAndProduct(t *testing.T) {
	env := newTestEnv(t, 10)

	resp, state := env.do(t, http.MethodPost, "/api/assistant/messages", map[string]string{"text": "Quiero crear una arquitectura"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, state["messages"], 1)
	assert.Empty(t, env.backend.sent())

	resp, state = env.do(t, http.MethodPut, "/api/assistant/product", map[string]any{"product": map[string]string{"id": "p-arch", "name": "Tienda"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	presence := state["architecture_presence"].(map[string]any)
	assert.Equal(t, "present", presence["p-arch"])

	resp, body := env.do(t, http.MethodPost, "/api/assistant/architecture/check", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "p-arch", body["product_id"])
	assert.Equal(t, "present", body["presence"])

	resp, _ = env.do(t, http.MethodPut, "/api/assistant/product", map[string]any{"product": map[string]string{"id": " "}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/assistant/canvas/burndown", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAssistantRateLimit(t *testing.T) {
	env := newTestEnv(t, 1)

	resp, _ := env.do(t, http.MethodPost, "/api/assistant/messages", map[string]string{"text": "hola"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, "/api/assistant/messages", map[string]string{"text": "otra"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/assistant/state", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "reads are not throttled")
}

func TestConversationsList(t *testing.T) {
	env := newTestEnv(t, 10)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/assistant/conversations", nil)
	require.NoError(t, err)
	resp, err := env.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "s-1", list[0]["session_id"])
}

func TestClassifyEndpoint(t *testing.T) {
	env := newTestEnv(t, 10)

	resp, body := env.do(t, http.MethodPost, "/api/assistant/classify", map[string]string{
		"text": "Opciones:\n- **Agregar**: nuevos módulos",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	d := body["directive"].(map[string]any)
	assert.Equal(t, "action_menu", d["kind"])
	assert.NotContains(t, body["text"], "Agregar")
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 10)

	resp, body := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	resp, err := env.client.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Establish the identity cookie first.
	resp, _ := env.do(t, http.MethodGet, "/api/assistant/state", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/assistant"
	ws, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPClient: env.client})
	require.NoError(t, err)
	defer ws.CloseNow()

	_, data, err := ws.Read(ctx)
	require.NoError(t, err)
	var first map[string]any
	require.NoError(t, json.Unmarshal(data, &first))
	assert.Equal(t, "snapshot", first["type"])

	go func() {
		resp, err := env.client.Post(env.server.URL+"/api/assistant/messages", "application/json", strings.NewReader(`{"text":"hola"}`))
		if err == nil {
			resp.Body.Close()
		}
	}()

	seen := map[string]int{}
	for seen[string(conversation.EventTypingStopped)] == 0 {
		_, data, err := ws.Read(ctx)
		require.NoError(t, err)
		var ev conversation.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		seen[string(ev.Type)]++
	}
	assert.Equal(t, 1, seen[string(conversation.EventTypingStarted)])
	assert.Equal(t, 2, seen[string(conversation.EventMessageAppended)])
}
