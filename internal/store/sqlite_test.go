package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/scrum-ai/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestUsers(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetUser(ctx, "anon_missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Now().Truncate(time.Second)
	old := now.Add(-2 * time.Hour)
	require.NoError(t, repo.UpsertUser(ctx, &domain.User{
		UserID: "anon_a", Username: "anon-a", LastSeenAt: old, CreatedAt: old, UpdatedAt: old,
	}))
	require.NoError(t, repo.UpsertUser(ctx, &domain.User{
		UserID: "anon_b", Username: "anon-b", LastSeenAt: now, CreatedAt: now, UpdatedAt: now,
	}))

	got, err = repo.GetUser(ctx, "anon_a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "anon-a", got.Username)
	assert.True(t, got.LastSeenAt.Equal(old))

	idle, err := repo.GetIdleUsers(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, idle, 1)
	assert.Equal(t, "anon_a", idle[0].UserID)

	require.NoError(t, repo.UpdateLastSeen(ctx, "anon_a", now))
	idle, err = repo.GetIdleUsers(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, idle)

	// Unknown users are logged, not failed.
	require.NoError(t, repo.UpdateLastSeen(ctx, "anon_missing", now))
}

func TestChatHistory(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	msgs, err := repo.LoadChatHistory(ctx, "anon_a")
	require.NoError(t, err)
	assert.Nil(t, msgs)

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	want := []domain.Message{
		{ID: "1", Role: domain.RoleUser, Text: "hola", Timestamp: ts, Status: domain.StatusSent},
		{ID: "2", Role: domain.RoleAssistant, Text: "¿En qué área?", Timestamp: ts, Status: domain.StatusSent, HasCanvas: true},
	}
	require.NoError(t, repo.SaveChatHistory(ctx, "anon_a", want))

	msgs, err = repo.LoadChatHistory(ctx, "anon_a")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, want[1].Text, msgs[1].Text)
	assert.True(t, msgs[1].HasCanvas)
	assert.True(t, msgs[0].Timestamp.Equal(ts))

	other, err := repo.LoadChatHistory(ctx, "anon_b")
	require.NoError(t, err)
	assert.Nil(t, other, "state is scoped per user")

	require.NoError(t, repo.SaveChatHistory(ctx, "anon_a", nil))
	msgs, err = repo.LoadChatHistory(ctx, "anon_a")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestActiveConversationAndProduct(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	conv, err := repo.LoadActiveConversation(ctx, "anon_a")
	require.NoError(t, err)
	assert.Nil(t, conv)

	require.NoError(t, repo.SaveActiveConversation(ctx, "anon_a", &domain.ConversationDescriptor{ID: "s-1", Title: "Plan"}))
	require.NoError(t, repo.SaveActiveConversation(ctx, "anon_a", &domain.ConversationDescriptor{ID: "s-2", Title: "Plan 2"}))
	conv, err = repo.LoadActiveConversation(ctx, "anon_a")
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, "s-2", conv.ID)

	require.NoError(t, repo.SaveActiveConversation(ctx, "anon_a", nil))
	conv, err = repo.LoadActiveConversation(ctx, "anon_a")
	require.NoError(t, err)
	assert.Nil(t, conv)

	require.NoError(t, repo.SaveSelectedProduct(ctx, "anon_a", &domain.Product{ID: "p-1", Name: "Tienda"}))
	p, err := repo.LoadSelectedProduct(ctx, "anon_a")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Tienda", p.Name)

	require.NoError(t, repo.SaveSelectedProduct(ctx, "anon_a", nil))
	p, err = repo.LoadSelectedProduct(ctx, "anon_a")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestMalformedStateIsIgnored(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	s := repo.(*SQLiteStore)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO local_state (user_id, key, value_json, updated_at) VALUES (?, ?, ?, ?)`,
		"anon_a", KeySelectedProduct, "{not json", time.Now().Unix())
	require.NoError(t, err)
	require.NoError(t, repo.SaveChatHistory(ctx, "anon_a", []domain.Message{{ID: "1", Text: "ok"}}))

	p, err := repo.LoadSelectedProduct(ctx, "anon_a")
	require.NoError(t, err)
	assert.Nil(t, p)

	msgs, err := repo.LoadChatHistory(ctx, "anon_a")
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "other keys still load")
}

func TestPing(t *testing.T) {
	repo := newTestStore(t)
	assert.NoError(t, repo.Ping(context.Background()))
}

func TestConnectionPragmas(t *testing.T) {
	repo := newTestStore(t)
	db := repo.(*SQLiteStore).db

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}
