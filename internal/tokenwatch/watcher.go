// Package tokenwatch はIDトークンの変化を購読し、最新のトークンをCookieストアへ
// 書き写すWatcherを提供する。
//
// ユーザーがいない場合やトークンの更新に失敗した場合は、Cookieを失効させる。
package tokenwatch

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/souvenir/internal/identity"
	"github.com/hitoshi/souvenir/internal/model"
)

// User はIDトークンを発行できるサインイン中のユーザー。
type User interface {
	IDToken(ctx context.Context, forceRefresh bool) (string, error)
}

// Source はIDトークンの変化を通知する。
// 通知はユーザー不在の場合nilで行われ、呼び出しは逐次でなければならない。
type Source interface {
	OnIDTokenChanged(fn func(User)) (unsubscribe func())
}

// CookieStore はCookieの書き込み先。
type CookieStore interface {
	SetCookie(c *http.Cookie)
}

// FromSession はidentity.SessionをSourceとして扱うアダプタを返す。
func FromSession(s *identity.Session) Source {
	return sessionSource{s}
}

type sessionSource struct {
	session *identity.Session
}

func (s sessionSource) OnIDTokenChanged(fn func(User)) func() {
	return s.session.OnIDTokenChanged(func(u *identity.User) {
		if u == nil {
			fn(nil)
			return
		}
		fn(u)
	})
}

// Watcher はIDトークンの変化をCookieストアへ反映する。
type Watcher struct {
	source  Source
	store   CookieStore
	logger  *slog.Logger
	timeout time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	unsub     func()
}

// New はWatcherを生成する。
func New(source Source, store CookieStore, logger *slog.Logger) *Watcher {
	return &Watcher{
		source:  source,
		store:   store,
		logger:  logger,
		timeout: 10 * time.Second,
	}
}

// Start は購読を開始する。2回目以降の呼び出しは何もしない。
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		wctx, cancel := context.WithCancel(ctx)
		w.mu.Lock()
		w.ctx = wctx
		w.cancel = cancel
		w.mu.Unlock()

		unsub := w.source.OnIDTokenChanged(w.handle)

		w.mu.Lock()
		w.unsub = unsub
		w.mu.Unlock()
	})
}

// Stop は購読を解除する。Start前やStop済みの場合は何もしない。
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		unsub, cancel := w.unsub, w.cancel
		w.mu.Unlock()

		if unsub != nil {
			unsub()
		}
		if cancel != nil {
			cancel()
		}
	})
}

func (w *Watcher) handle(u User) {
	if u == nil {
		w.store.SetCookie(expiredIDTokenCookie())
		w.logger.Debug("no user, ID token cookie expired")
		return
	}

	w.mu.Lock()
	parent := w.ctx
	w.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithTimeout(parent, w.timeout)
	defer cancel()

	token, err := u.IDToken(ctx, true)
	if err != nil {
		w.logger.Warn("failed to refresh ID token, cookie expired",
			slog.String("error", err.Error()),
		)
		w.store.SetCookie(expiredIDTokenCookie())
		return
	}

	w.store.SetCookie(&http.Cookie{
		Name:  model.CookieIDToken,
		Value: token,
		Path:  "/",
	})
}

func expiredIDTokenCookie() *http.Cookie {
	return &http.Cookie{
		Name:    model.CookieIDToken,
		Value:   "",
		Path:    "/",
		Expires: time.Unix(0, 0).UTC(),
		MaxAge:  -1,
	}
}
