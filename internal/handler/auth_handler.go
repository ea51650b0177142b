// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/hitoshi/souvenir/internal/gate"
	"github.com/hitoshi/souvenir/internal/identity"
	"github.com/hitoshi/souvenir/internal/middleware"
	"github.com/hitoshi/souvenir/internal/model"
)

// minPasswordLength は登録時に受け付けるパスワードの最小長。
const minPasswordLength = 6

// IdentityProvider は認証ハンドラーが必要とするIDプロバイダの操作。
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Tokens, error)
	SignUp(ctx context.Context, email, password string) (*identity.Tokens, error)
}

// ProfileCreator は登録時に利用者プロフィールを作成する。
type ProfileCreator interface {
	CreateUser(ctx context.Context, idToken string, user model.User) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

func (c AuthHandlerConfig) sessionCookies() middleware.SessionCookies {
	return middleware.SessionCookies{Domain: c.CookieDomain, Secure: c.CookieSecure}
}

// AuthHandler はログイン・登録・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	identity IdentityProvider
	profiles ProfileCreator
	config   AuthHandlerConfig
	logger   *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(identity IdentityProvider, profiles ProfileCreator, config AuthHandlerConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		identity: identity,
		profiles: profiles,
		config:   config,
		logger:   logger,
	}
}

// authPage はログイン・登録ページの表示データ。
type authPage struct {
	Page      string `json:"page"`
	Action    string `json:"action"`
	CSRFField string `json:"csrf_field"`
}

// LoginPage はログインページの表示データを返す。
// GET /auth/login
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, authPage{Page: "login", Action: gate.LoginPath, CSRFField: "csrf_token"})
}

// RegisterPage は登録ページの表示データを返す。
// GET /auth/register
func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, authPage{Page: "register", Action: "/auth/register", CSRFField: "csrf_token"})
}

// Login はメールアドレスとパスワードでサインインし、セッションCookieを設定する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("email and password are required"))
		return
	}

	tokens, err := h.identity.SignInWithPassword(r.Context(), email, password)
	if err != nil {
		h.writeIdentityError(w, "sign-in", err)
		return
	}

	h.setSessionCookies(w, tokens)
	h.logger.Info("user signed in", slog.String("user_id", tokens.UserID))
	http.Redirect(w, r, gate.HomePath, http.StatusFound)
}

// Register はアカウントを作成し、ドメインAPIに利用者プロフィールを作成してからセッションCookieを設定する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	name := strings.TrimSpace(r.PostFormValue("name"))

	if _, err := mail.ParseAddress(email); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("a valid email address is required"))
		return
	}
	if len(password) < minPasswordLength {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("password must be at least 6 characters"))
		return
	}
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	tokens, err := h.identity.SignUp(r.Context(), email, password)
	if err != nil {
		h.writeIdentityError(w, "sign-up", err)
		return
	}

	if _, err := h.profiles.CreateUser(r.Context(), tokens.IDToken, model.User{
		ID:    tokens.UserID,
		Email: email,
		Name:  name,
	}); err != nil {
		h.logger.Error("failed to create user profile",
			slog.String("user_id", tokens.UserID),
			slog.String("error", err.Error()),
		)
		writeCatalogError(w, err, "users", tokens.UserID)
		return
	}

	h.setSessionCookies(w, tokens)
	h.logger.Info("user registered", slog.String("user_id", tokens.UserID))
	http.Redirect(w, r, gate.HomePath, http.StatusFound)
}

// Logout はセッションCookieを失効させてログインページへリダイレクトする。
// POST /auth/logout
// ゲートは検証しないため、期限切れのトークンを持っていても到達できる。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.config.sessionCookies().Expire(w)
	http.Redirect(w, r, gate.LoginPath, http.StatusFound)
}

func (h *AuthHandler) writeIdentityError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, identity.ErrInvalidCredentials) {
		h.logger.Info(op+" rejected", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
		return
	}
	h.logger.Error(op+" failed", slog.String("error", err.Error()))
	middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewUpstreamFailedError())
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, tokens *identity.Tokens) {
	cookies := h.config.sessionCookies()
	http.SetCookie(w, cookies.New(model.CookieIDToken, tokens.IDToken, h.config.SessionMaxAge))
	http.SetCookie(w, cookies.New(model.CookieUserID, tokens.UserID, h.config.SessionMaxAge))
}
