package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// refreshMargin は有効期限のどれだけ前にトークンを更新するか。
const refreshMargin = 5 * time.Minute

// ErrNoUser はサインインしていない状態でトークンを要求した場合のエラー。
var ErrNoUser = errors.New("no user is signed in")

// TokenClient はSessionが利用するIDプロバイダの操作。
type TokenClient interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
}

// User はサインイン中のユーザー。
type User struct {
	UID   string
	Email string

	session *Session
}

// IDToken は現在のIDトークンを返す。
// forceRefreshがtrueの場合、または有効期限が近い場合はIDプロバイダから取り直す。
// ここでの更新は購読者に通知しない。
func (u *User) IDToken(ctx context.Context, forceRefresh bool) (string, error) {
	return u.session.idToken(ctx, u, forceRefresh)
}

// Session はクライアント側のサインイン状態を保持する。
// IDトークンの変化（サインイン、サインアウト、期限前の自動更新）を購読者へ順番に通知する。
type Session struct {
	client TokenClient
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	user      *User
	tokens    Tokens
	refreshAt time.Time
	observers map[int]func(*User)
	nextID    int
	changed   chan struct{}

	// notifyMu は通知の順序を保証する
	notifyMu sync.Mutex
}

// NewSession はSessionを生成する。
func NewSession(client TokenClient, logger *slog.Logger) *Session {
	return &Session{
		client:    client,
		logger:    logger,
		now:       time.Now,
		observers: make(map[int]func(*User)),
		changed:   make(chan struct{}),
	}
}

// CurrentUser はサインイン中のユーザーを返す。未サインインの場合はnil。
func (s *Session) CurrentUser() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// SignIn はメールアドレスとパスワードでサインインし、購読者に通知する。
func (s *Session) SignIn(ctx context.Context, email, password string) (*User, error) {
	tokens, err := s.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	user := s.setUser(tokens)
	s.notify()
	return user, nil
}

// SignOut はサインイン状態を破棄し、購読者にユーザー不在を通知する。
func (s *Session) SignOut() {
	s.mu.Lock()
	s.user = nil
	s.tokens = Tokens{}
	s.refreshAt = time.Time{}
	s.signalLocked()
	s.mu.Unlock()

	s.notify()
}

// OnIDTokenChanged はIDトークンの変化を購読する。
// 登録時に現在のユーザー（未サインインならnil）で1回呼び出される。
// 戻り値の関数で購読を解除する。
func (s *Session) OnIDTokenChanged(fn func(*User)) (unsubscribe func()) {
	// 登録と現在値の読み取りをnotifyMuの中で行い、並行する通知と順序を揃える
	s.notifyMu.Lock()
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	current := s.user
	s.mu.Unlock()
	fn(current)
	s.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// Run は有効期限の前にIDトークンを自動更新し、購読者に通知する。
// ctxがキャンセルされるまでブロックする。更新に失敗した場合はサインアウトする。
func (s *Session) Run(ctx context.Context) error {
	for {
		s.mu.Lock()
		user := s.user
		wait := s.refreshAt.Sub(s.now())
		changed := s.changed
		s.mu.Unlock()

		if user == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-changed:
				continue
			}
		}

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-changed:
				timer.Stop()
				continue
			case <-timer.C:
			}
		}

		if err := s.rotate(ctx, user); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("failed to rotate ID token",
				slog.String("uid", user.UID),
				slog.String("error", err.Error()),
			)
			s.SignOut()
		}
	}
}

func (s *Session) rotate(ctx context.Context, user *User) error {
	s.mu.Lock()
	refreshToken := s.tokens.RefreshToken
	s.mu.Unlock()

	tokens, err := s.client.Refresh(ctx, refreshToken)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.user != user {
		// 更新中にサインアウトまたは別ユーザーでサインインされた
		s.mu.Unlock()
		return nil
	}
	s.applyLocked(tokens)
	s.mu.Unlock()

	s.logger.Debug("ID token rotated", slog.String("uid", user.UID))
	s.notify()
	return nil
}

func (s *Session) idToken(ctx context.Context, user *User, force bool) (string, error) {
	s.mu.Lock()
	if s.user != user {
		s.mu.Unlock()
		return "", ErrNoUser
	}
	if !force && s.now().Before(s.refreshAt) {
		token := s.tokens.IDToken
		s.mu.Unlock()
		return token, nil
	}
	refreshToken := s.tokens.RefreshToken
	s.mu.Unlock()

	tokens, err := s.client.Refresh(ctx, refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh ID token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user != user {
		return "", ErrNoUser
	}
	s.applyLocked(tokens)
	return s.tokens.IDToken, nil
}

func (s *Session) setUser(tokens *Tokens) *User {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = &User{UID: tokens.UserID, Email: tokens.Email, session: s}
	s.tokens = Tokens{}
	s.applyLocked(tokens)
	s.signalLocked()
	return s.user
}

func (s *Session) applyLocked(tokens *Tokens) {
	s.tokens.IDToken = tokens.IDToken
	if tokens.RefreshToken != "" {
		s.tokens.RefreshToken = tokens.RefreshToken
	}
	expiresIn := tokens.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	s.tokens.ExpiresIn = expiresIn

	// 有効期間が短いトークンは期間の半分で更新する
	margin := refreshMargin
	if expiresIn <= 2*refreshMargin {
		margin = expiresIn / 2
	}
	s.refreshAt = s.now().Add(expiresIn - margin)
}

// signalLocked はRunのループに状態変化を知らせる。
func (s *Session) signalLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// notify は購読者に現在のユーザーを通知する。
// 変更時点の値ではなくnotifyMuを取ってから読んだ値を渡すので、
// 通知が前後しても最後に届くのは常に最新の状態になる。
func (s *Session) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	user := s.user
	fns := make([]func(*User), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(user)
	}
}
