package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/scrum-ai/internal/backend"
	"github.com/ashureev/scrum-ai/internal/conversation"
	"github.com/ashureev/scrum-ai/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want command
	}{
		{"hola", command{text: "hola"}},
		{"  hola  ", command{text: "hola"}},
		{"", command{text: ""}},
		{"/", command{text: "/"}},
		{"/quit", command{name: "quit", args: []string{}}},
		{"/MENU 3", command{name: "menu", args: []string{"3"}}},
		{"/set product_name Mi producto nuevo", command{name: "set", args: []string{"product_name", "Mi producto nuevo"}}},
		{"/toggle stack Go", command{name: "toggle", args: []string{"stack", "Go"}}},
		{"/set only_field", command{name: "set", args: []string{"only_field"}}},
		{"/product p-1 Tienda online", command{name: "product", args: []string{"p-1", "Tienda", "online"}}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCommand(tt.line))
		})
	}
}

type chatBackend struct {
	mu       sync.Mutex
	messages []string
}

func (b *chatBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/ai/chat", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.messages = append(b.messages, req.Message)
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response":       "¿En qué área deseas trabajar? Responde con el número o nombre.",
			"session_id":     "s-cli",
			"is_new_session": true,
		})
	})
	mux.HandleFunc("GET /api/v1/products/{id}/architecture/exists", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"exists": false})
	})
	return mux
}

func (b *chatBackend) sent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.messages...)
}

func newTestSession(t *testing.T) (*chatSession, *bytes.Buffer, *chatBackend) {
	t.Helper()

	fb := &chatBackend{}
	srv := httptest.NewServer(fb.handler())
	t.Cleanup(srv.Close)

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "cli.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	m, err := conversation.NewManager(context.Background(), "cli", conversation.Dependencies{
		Backend: backend.NewClient(backend.Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, nil),
		Store:   repo,
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	var out bytes.Buffer
	return &chatSession{m: m, out: &out}, &out, fb
}

func TestChatSessionLoop(t *testing.T) {
	s, out, fb := newTestSession(t)

	input := strings.Join([]string{
		"/product p-1 Tienda",
		"quiero editar la arquitectura",
		"/menu 1",
		"/state",
		"/quit",
		"never sent",
	}, "\n")
	require.NoError(t, s.loop(context.Background(), strings.NewReader(input)))

	sent := fb.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "quiero editar la arquitectura", sent[0])
	assert.True(t, strings.HasPrefix(sent[1], "1️⃣"), sent[1])

	text := out.String()
	assert.Contains(t, text, "architecture: absent")
	assert.Contains(t, text, "tú: quiero editar la arquitectura")
	assert.Contains(t, text, "asistente: ")
	assert.Contains(t, text, "  [1] ")
	assert.Contains(t, text, "session=s-cli product=p-1")
	assert.NotContains(t, text, "never sent")
}

func TestChatSessionErrors(t *testing.T) {
	s, out, fb := newTestSession(t)

	input := strings.Join([]string{
		"/menu x",
		"/menu 1",
		"/bogus",
		"/set",
	}, "\n")
	require.NoError(t, s.loop(context.Background(), strings.NewReader(input)))

	assert.Empty(t, fb.sent())
	text := out.String()
	assert.Contains(t, text, "! wrong arguments")
	assert.Contains(t, text, "! unknown command /bogus")
	// /menu 1 with no section menu on screen fails inside the manager.
	assert.Equal(t, 4, strings.Count(text, "! "))
}

func TestRunClassify(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runClassify(&out, "¿En qué área deseas trabajar? Responde con el número o nombre.", false))
	assert.Contains(t, out.String(), "kind:  section_menu")
	assert.Contains(t, out.String(), "  [1] ")

	out.Reset()
	require.NoError(t, runClassify(&out, "Hola, ¿cómo estás?", true))
	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Contains(t, got, "text")
}
