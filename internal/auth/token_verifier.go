package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/souvenir/internal/model"
)

// TokenVerifierConfig はローカル検証の設定。
// SecretとPublicKeyのどちらか一方を指定する（両方指定時はPublicKeyを優先）。
type TokenVerifierConfig struct {
	Secret    []byte         // HS256用の共有鍵
	PublicKey *rsa.PublicKey // RS256用の公開鍵
	Issuer    string         // 空でなければissを検証する
	Audience  string         // 空でなければaudを検証する
	Leeway    time.Duration  // 時刻検証の許容誤差
}

// idTokenClaims はIDトークンのクレーム。
type idTokenClaims struct {
	jwt.RegisteredClaims
	Email  string `json:"email,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// TokenVerifier は署名鍵を使ってIDトークンをプロセス内で検証する。
type TokenVerifier struct {
	config  TokenVerifierConfig
	methods []string
}

// NewTokenVerifier はTokenVerifierを生成する。
func NewTokenVerifier(config TokenVerifierConfig) (*TokenVerifier, error) {
	switch {
	case config.PublicKey != nil:
		return &TokenVerifier{config: config, methods: []string{jwt.SigningMethodRS256.Alg()}}, nil
	case len(config.Secret) > 0:
		return &TokenVerifier{config: config, methods: []string{jwt.SigningMethodHS256.Alg()}}, nil
	default:
		return nil, fmt.Errorf("token verifier requires a secret or a public key")
	}
}

// LoadRSAPublicKey はPEM形式のRSA公開鍵ファイルを読み込む。
func LoadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}

// Verify はIDトークンの署名・有効期限・発行日時を検証し、クレームを返す。
func (v *TokenVerifier) Verify(ctx context.Context, token string) (*model.Claims, error) {
	if token == "" {
		return nil, newVerifyError(ReasonUnauthorized, "empty token")
	}
	if err := ctx.Err(); err != nil {
		return nil, &VerifyError{Reason: ReasonNetworkError, Err: err}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.config.Leeway),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	claims := &idTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyFunc, opts...)
	if err != nil {
		return nil, &VerifyError{Reason: ReasonUnauthorized, Err: err}
	}
	if !parsed.Valid {
		return nil, newVerifyError(ReasonUnauthorized, "invalid token")
	}

	uid := claims.Subject
	if uid == "" {
		uid = claims.UserID
	}
	if uid == "" {
		return nil, newVerifyError(ReasonUnauthorized, "token has no subject")
	}
	if claims.IssuedAt == nil {
		return nil, newVerifyError(ReasonUnauthorized, "token has no iat")
	}

	return &model.Claims{
		UID:       uid,
		Email:     claims.Email,
		IssuedAt:  claims.IssuedAt.Unix(),
		ExpiresAt: claims.ExpiresAt.Unix(),
	}, nil
}

func (v *TokenVerifier) keyFunc(t *jwt.Token) (interface{}, error) {
	if v.config.PublicKey != nil {
		return v.config.PublicKey, nil
	}
	return v.config.Secret, nil
}

// compile-time interface check
var _ Verifier = (*TokenVerifier)(nil)
