package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashureev/scrum-ai/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIdleSource struct {
	users []*domain.User
	err   error
}

func (f fakeIdleSource) GetIdleUsers(context.Context, time.Duration) ([]*domain.User, error) {
	return f.users, f.err
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry(Dependencies{Backend: newFakeBackend(), Store: newMemoryStore()})
	t.Cleanup(reg.Close)
	return reg
}

func TestRegistryGetReturnsSameManager(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	a, err := reg.Get(ctx, "device-a")
	require.NoError(t, err)
	again, err := reg.Get(ctx, "device-a")
	require.NoError(t, err)
	b, err := reg.Get(ctx, "device-b")
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistryEvict(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	first, err := reg.Get(ctx, "device-a")
	require.NoError(t, err)

	assert.True(t, reg.Evict("device-a"))
	assert.False(t, reg.Evict("device-a"))
	assert.ErrorIs(t, first.Send(ctx, "hola"), ErrClosed)

	second, err := reg.Get(ctx, "device-a")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestRegistryClose(t *testing.T) {
	reg := NewRegistry(Dependencies{Backend: newFakeBackend(), Store: newMemoryStore()})
	_, err := reg.Get(context.Background(), "device-a")
	require.NoError(t, err)

	reg.Close()
	assert.Zero(t, reg.Len())
	_, err = reg.Get(context.Background(), "device-a")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEvictIdle(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	stale, err := reg.Get(ctx, "stale")
	require.NoError(t, err)
	stale.mu.Lock()
	stale.lastActive = time.Now().Add(-2 * time.Hour)
	stale.mu.Unlock()

	_, err = reg.Get(ctx, "fresh")
	require.NoError(t, err)
	_, err = reg.Get(ctx, "gone")
	require.NoError(t, err)

	var evicted []string
	source := fakeIdleSource{users: []*domain.User{{UserID: "gone"}, {UserID: "unknown"}}}
	evictIdle(ctx, source, reg, time.Hour, func(id string) { evicted = append(evicted, id) })

	assert.ElementsMatch(t, []string{"stale", "gone"}, evicted)
	assert.Equal(t, 1, reg.Len())
}

func TestEvictIdleSourceError(t *testing.T) {
	reg := newTestRegistry(t)
	m, err := reg.Get(context.Background(), "stale")
	require.NoError(t, err)
	m.mu.Lock()
	m.lastActive = time.Now().Add(-2 * time.Hour)
	m.mu.Unlock()

	evictIdle(context.Background(), fakeIdleSource{err: errors.New("db down")}, reg, time.Hour, nil)
	assert.Zero(t, reg.Len())
}

func TestStartIdleWorkerStopsOnCancel(t *testing.T) {
	reg := newTestRegistry(t)
	m, err := reg.Get(context.Background(), "stale")
	require.NoError(t, err)
	m.mu.Lock()
	m.lastActive = time.Now().Add(-2 * time.Hour)
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartIdleWorker(ctx, nil, reg, time.Hour, 10*time.Millisecond, nil)

	require.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 10*time.Millisecond)
}
