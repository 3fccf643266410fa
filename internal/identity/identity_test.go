package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/scrum-ai/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	touches int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]*domain.User{}}
}

func (f *fakeUsers) GetUser(_ context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) UpsertUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *user
	f.users[user.UserID] = &cp
	return nil
}

func (f *fakeUsers) UpdateLastSeen(_ context.Context, userID string, lastSeen time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touches++
	f.users[userID].LastSeenAt = lastSeen
	return nil
}

func TestMiddlewareIssuesCookie(t *testing.T) {
	users := newFakeUsers()
	var seen string
	h := Middleware(users, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
		assert.Equal(t, deriveUsername(seen), UsernameFromContext(r.Context()))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/assistant/state", nil))

	require.True(t, isValidAnonID(seen), "got %q", seen)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, AnonCookieName, cookies[0].Name)
	assert.Equal(t, seen, cookies[0].Value)
	assert.False(t, cookies[0].Secure)
	assert.Contains(t, users.users, seen)
}

func TestMiddlewareReusesValidCookie(t *testing.T) {
	users := newFakeUsers()
	id := "anon_0123456789abcdef0123456789abcdef"
	var seen string
	h := Middleware(users, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, id, seen)
	assert.True(t, rec.Result().Cookies()[0].Secure)
}

func TestMiddlewareReplacesInvalidCookie(t *testing.T) {
	var seen string
	h := Middleware(newFakeUsers(), true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "../../etc/passwd"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, isValidAnonID(seen))
	assert.NotEqual(t, "../../etc/passwd", seen)
}

func TestTouchUserThrottlesLastSeen(t *testing.T) {
	users := newFakeUsers()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, touchUser(ctx, users, "anon_x", now))
	require.NoError(t, touchUser(ctx, users, "anon_x", now.Add(10*time.Second)))
	assert.Zero(t, users.touches)

	require.NoError(t, touchUser(ctx, users, "anon_x", now.Add(2*time.Minute)))
	assert.Equal(t, 1, users.touches)
	assert.Equal(t, now.Add(2*time.Minute), users.users["anon_x"].LastSeenAt)
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5123"
	assert.Equal(t, "10.0.0.7", IPFromRequest(req))

	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", IPFromRequest(req))
}
