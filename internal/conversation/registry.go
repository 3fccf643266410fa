package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/scrum-ai/internal/domain"
	"github.com/ashureev/scrum-ai/internal/metrics"
)

// Registry holds one Manager per device identity.
type Registry struct {
	deps Dependencies

	mu       sync.Mutex
	managers map[string]*Manager
	closed   bool
}

// NewRegistry creates an empty registry.
func NewRegistry(deps Dependencies) *Registry {
	return &Registry{
		deps:     deps,
		managers: make(map[string]*Manager),
	}
}

// Get returns the manager for ownerID, creating and loading it on first use.
func (r *Registry) Get(ctx context.Context, ownerID string) (*Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if m, ok := r.managers[ownerID]; ok {
		return m, nil
	}

	m, err := NewManager(ctx, ownerID, r.deps)
	if err != nil {
		return nil, err
	}
	r.managers[ownerID] = m
	metrics.ActiveSessions.Set(float64(len(r.managers)))
	return m, nil
}

// Len returns the number of managers in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

// Evict closes and drops the manager for ownerID. Busy managers are kept
// and false is returned.
func (r *Registry) Evict(ownerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[ownerID]
	if !ok {
		return false
	}
	if m.Busy() {
		return false
	}
	m.Close()
	delete(r.managers, ownerID)
	metrics.ActiveSessions.Set(float64(len(r.managers)))
	return true
}

// Close closes every manager. Later Get calls fail with ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, m := range r.managers {
		m.Close()
		delete(r.managers, id)
	}
	metrics.ActiveSessions.Set(0)
}

// idleSnapshot returns the owners whose managers have been idle for ttl.
func (r *Registry) idleSnapshot(now time.Time, ttl time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var idle []string
	for id, m := range r.managers {
		if m.IdleFor(now) >= ttl {
			idle = append(idle, id)
		}
	}
	return idle
}

// IdleUserSource lists device users not seen within a TTL.
type IdleUserSource interface {
	GetIdleUsers(ctx context.Context, ttl time.Duration) ([]*domain.User, error)
}

const idleWorkerInterval = 5 * time.Minute

// EvictCallback is called after a manager is evicted by the idle worker.
type EvictCallback func(userID string)

// StartIdleWorker runs a background goroutine that periodically evicts
// managers idle for longer than ttl. Users the store reports idle are
// evicted too, so managers of devices that stopped calling are released
// even if a stray subscription kept them warm.
func StartIdleWorker(ctx context.Context, users IdleUserSource, reg *Registry, ttl, interval time.Duration, onEvict EvictCallback) {
	if interval <= 0 {
		interval = idleWorkerInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Idle worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				evictIdle(ctx, users, reg, ttl, onEvict)
			case <-ctx.Done():
				slog.Info("Idle worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func evictIdle(ctx context.Context, users IdleUserSource, reg *Registry, ttl time.Duration, onEvict EvictCallback) {
	candidates := make(map[string]struct{})
	for _, id := range reg.idleSnapshot(time.Now(), ttl) {
		candidates[id] = struct{}{}
	}

	if users != nil {
		idleUsers, err := users.GetIdleUsers(ctx, ttl)
		if err != nil {
			slog.Error("Idle worker failed to get idle users", "error", err)
		}
		for _, u := range idleUsers {
			candidates[u.UserID] = struct{}{}
		}
	}

	evicted := 0
	for id := range candidates {
		if !reg.Evict(id) {
			continue
		}
		evicted++
		metrics.EvictedSessionsTotal.Inc()
		slog.Info("Idle worker evicted session manager", "user_id", id)
		if onEvict != nil {
			onEvict(id)
		}
	}

	if evicted > 0 {
		slog.Info("Idle worker cleanup completed", "evicted", evicted, "remaining", reg.Len())
	}
}
