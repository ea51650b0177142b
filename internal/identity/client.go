// Package identity はIDプロバイダ（Identity Toolkit互換のREST API）のクライアントと、
// サインイン中のユーザーのトークンを保持・更新するセッションを提供する。
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL はアカウントAPIの既定のベースURL。
	DefaultBaseURL = "https://identitytoolkit.googleapis.com/v1"
	// DefaultSecureTokenURL はトークン更新APIの既定のURL。
	DefaultSecureTokenURL = "https://securetoken.googleapis.com/v1/token"

	maxResponseSize = 64 * 1024
)

// ErrInvalidCredentials はメールアドレスまたはパスワードが誤っている場合のエラー。
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrTokenRevoked はリフレッシュトークンが無効になっている場合のエラー。
var ErrTokenRevoked = errors.New("refresh token is no longer valid")

// Error はIDプロバイダが返したエラー応答。
type Error struct {
	StatusCode int
	Code       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("identity provider returned %d: %s", e.StatusCode, e.Code)
}

// Tokens はサインインまたは更新で得たトークン一式。
type Tokens struct {
	UserID       string
	Email        string
	IDToken      string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Client はIDプロバイダのRESTクライアント。
type Client struct {
	httpClient     *http.Client
	apiKey         string
	baseURL        string
	secureTokenURL string
	logger         *slog.Logger
}

// NewClient はClientを生成する。baseURL, secureTokenURLが空の場合は既定値を使う。
func NewClient(httpClient *http.Client, apiKey, baseURL, secureTokenURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if secureTokenURL == "" {
		secureTokenURL = DefaultSecureTokenURL
	}
	return &Client{
		httpClient:     httpClient,
		apiKey:         apiKey,
		baseURL:        strings.TrimRight(baseURL, "/"),
		secureTokenURL: secureTokenURL,
		logger:         logger,
	}
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type accountResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type refreshResponse struct {
	UserID       string `json:"user_id"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignInWithPassword はメールアドレスとパスワードでサインインする。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Tokens, error) {
	return c.account(ctx, "/accounts:signInWithPassword", email, password)
}

// SignUp は新しいアカウントを作成し、そのままサインインした状態のトークンを返す。
func (c *Client) SignUp(ctx context.Context, email, password string) (*Tokens, error) {
	return c.account(ctx, "/accounts:signUp", email, password)
}

// Refresh はリフレッシュトークンから新しいIDトークンを取得する。
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.withKey(c.secureTokenURL), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var res refreshResponse
	if err := c.do(req, &res); err != nil {
		var perr *Error
		if errors.As(err, &perr) && isRevoked(perr.Code) {
			return nil, fmt.Errorf("%w: %s", ErrTokenRevoked, perr.Code)
		}
		return nil, err
	}
	if res.IDToken == "" {
		return nil, fmt.Errorf("refresh response has no id_token")
	}

	return &Tokens{
		UserID:       res.UserID,
		IDToken:      res.IDToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    parseExpiresIn(res.ExpiresIn),
	}, nil
}

func (c *Client) account(ctx context.Context, path, email, password string) (*Tokens, error) {
	body, err := json.Marshal(passwordRequest{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.withKey(c.baseURL+path), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var res accountResponse
	if err := c.do(req, &res); err != nil {
		var perr *Error
		if errors.As(err, &perr) && isInvalidCredentials(perr.Code) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, perr.Code)
		}
		return nil, err
	}
	if res.IDToken == "" || res.LocalID == "" {
		return nil, fmt.Errorf("identity response has no idToken or localId")
	}

	return &Tokens{
		UserID:       res.LocalID,
		Email:        res.Email,
		IDToken:      res.IDToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    parseExpiresIn(res.ExpiresIn),
	}, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("identity provider request failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read identity response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		code := http.StatusText(resp.StatusCode)
		if json.Unmarshal(raw, &er) == nil && er.Error.Message != "" {
			code = er.Error.Message
		}
		return &Error{StatusCode: resp.StatusCode, Code: code}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse identity response: %w", err)
	}
	return nil
}

func (c *Client) withKey(endpoint string) string {
	if c.apiKey == "" {
		return endpoint
	}
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + "key=" + url.QueryEscape(c.apiKey)
}

// parseExpiresIn は秒数の文字列を期間に変換する。解釈できない場合は1時間とみなす。
func parseExpiresIn(s string) time.Duration {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return time.Hour
	}
	return time.Duration(n) * time.Second
}

// エラーコードは "INVALID_PASSWORD : ..." のように詳細が続く場合がある。
func errorCodeName(code string) string {
	name, _, _ := strings.Cut(code, " ")
	return name
}

func isInvalidCredentials(code string) bool {
	switch errorCodeName(code) {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED",
		"EMAIL_EXISTS", "WEAK_PASSWORD", "INVALID_EMAIL", "MISSING_PASSWORD":
		return true
	}
	return false
}

func isRevoked(code string) bool {
	switch errorCodeName(code) {
	case "TOKEN_EXPIRED", "USER_DISABLED", "USER_NOT_FOUND", "INVALID_REFRESH_TOKEN":
		return true
	}
	return false
}
