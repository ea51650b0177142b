package tokenwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/souvenir/internal/model"
)

// --- Mock Source ---

type mockSource struct {
	mu          sync.Mutex
	observers   []func(User)
	subscribes  int
	unsubscribe int
}

func (m *mockSource) OnIDTokenChanged(fn func(User)) func() {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.subscribes++
	idx := len(m.observers) - 1
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.observers[idx] = nil
		m.unsubscribe++
	}
}

func (m *mockSource) emit(u User) {
	m.mu.Lock()
	fns := append([]func(User){}, m.observers...)
	m.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn(u)
		}
	}
}

// --- Mock User ---

type mockUser struct {
	idTokenFn func(ctx context.Context, force bool) (string, error)
	forced    []bool
}

func (m *mockUser) IDToken(ctx context.Context, force bool) (string, error) {
	m.forced = append(m.forced, force)
	return m.idTokenFn(ctx, force)
}

// --- Mock CookieStore ---

type mockStore struct {
	cookies []*http.Cookie
}

func (m *mockStore) SetCookie(c *http.Cookie) {
	m.cookies = append(m.cookies, c)
}

func (m *mockStore) last(t *testing.T) *http.Cookie {
	t.Helper()
	if len(m.cookies) == 0 {
		t.Fatal("no cookie written")
	}
	return m.cookies[len(m.cookies)-1]
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func assertExpired(t *testing.T, c *http.Cookie) {
	t.Helper()
	if c.Name != model.CookieIDToken {
		t.Errorf("Name = %q, want %q", c.Name, model.CookieIDToken)
	}
	if c.Value != "" {
		t.Errorf("Value = %q, want empty", c.Value)
	}
	if !c.Expires.Equal(time.Unix(0, 0)) {
		t.Errorf("Expires = %v, want 1970-01-01", c.Expires)
	}
	if c.MaxAge >= 0 {
		t.Errorf("MaxAge = %d, want negative", c.MaxAge)
	}
}

func TestWatcher_NoUser_ExpiresCookie(t *testing.T) {
	source := &mockSource{}
	store := &mockStore{}
	w := New(source, store, newTestLogger())
	w.Start(context.Background())
	defer w.Stop()

	source.emit(nil)

	assertExpired(t, store.last(t))
}

func TestWatcher_User_WritesForcedToken(t *testing.T) {
	source := &mockSource{}
	store := &mockStore{}
	w := New(source, store, newTestLogger())
	w.Start(context.Background())
	defer w.Stop()

	user := &mockUser{idTokenFn: func(context.Context, bool) (string, error) {
		return "fresh-token", nil
	}}
	source.emit(user)

	c := store.last(t)
	if c.Name != model.CookieIDToken || c.Value != "fresh-token" {
		t.Errorf("cookie = %s=%s, want idToken=fresh-token", c.Name, c.Value)
	}
	if !c.Expires.IsZero() || c.MaxAge != 0 {
		t.Errorf("cookie should have no explicit expiry: Expires=%v MaxAge=%d", c.Expires, c.MaxAge)
	}
	if len(user.forced) != 1 || !user.forced[0] {
		t.Errorf("IDToken force flags = %v, want [true]", user.forced)
	}
}

func TestWatcher_RefreshFailure_ExpiresCookie(t *testing.T) {
	source := &mockSource{}
	store := &mockStore{}
	w := New(source, store, newTestLogger())
	w.Start(context.Background())
	defer w.Stop()

	source.emit(&mockUser{idTokenFn: func(context.Context, bool) (string, error) {
		return "", errors.New("refresh failed")
	}})

	assertExpired(t, store.last(t))
}

func TestWatcher_Sequence(t *testing.T) {
	source := &mockSource{}
	store := &mockStore{}
	w := New(source, store, newTestLogger())
	w.Start(context.Background())
	defer w.Stop()

	n := 0
	user := &mockUser{idTokenFn: func(context.Context, bool) (string, error) {
		n++
		return []string{"t1", "t2"}[n-1], nil
	}}

	source.emit(user)
	source.emit(user)
	source.emit(nil)

	if len(store.cookies) != 3 {
		t.Fatalf("cookies written = %d, want 3", len(store.cookies))
	}
	if store.cookies[0].Value != "t1" || store.cookies[1].Value != "t2" {
		t.Errorf("values = %q, %q; want t1, t2", store.cookies[0].Value, store.cookies[1].Value)
	}
	assertExpired(t, store.cookies[2])
}

func TestWatcher_StartIsIdempotent(t *testing.T) {
	source := &mockSource{}
	store := &mockStore{}
	w := New(source, store, newTestLogger())

	w.Start(context.Background())
	w.Start(context.Background())
	defer w.Stop()

	if source.subscribes != 1 {
		t.Fatalf("subscribes = %d, want 1", source.subscribes)
	}

	source.emit(nil)
	if len(store.cookies) != 1 {
		t.Errorf("cookies written = %d, want 1 per notification", len(store.cookies))
	}
}

func TestWatcher_Stop_Unsubscribes(t *testing.T) {
	source := &mockSource{}
	store := &mockStore{}
	w := New(source, store, newTestLogger())
	w.Start(context.Background())

	w.Stop()
	w.Stop()

	if source.unsubscribe != 1 {
		t.Errorf("unsubscribe calls = %d, want 1", source.unsubscribe)
	}
	source.emit(nil)
	if len(store.cookies) != 0 {
		t.Errorf("cookies written after Stop = %d, want 0", len(store.cookies))
	}
}

func TestWatcher_StopBeforeStart(t *testing.T) {
	w := New(&mockSource{}, &mockStore{}, newTestLogger())
	w.Stop()
}
