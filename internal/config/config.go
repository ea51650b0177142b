package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// VerifierMode はIDトークン検証の実装方式を表す。
type VerifierMode string

const (
	// VerifierModeLocal は署名鍵を使ってプロセス内でJWTを検証する。
	VerifierModeLocal VerifierMode = "local"
	// VerifierModeRemote は検証エンドポイントへHTTPで問い合わせる。
	VerifierModeRemote VerifierMode = "remote"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Domain API
	APIBaseURL string
	APITimeout time.Duration

	// Token verification
	VerifierMode       VerifierMode
	VerifyURL          string
	TokenSecret        string
	TokenPublicKeyFile string
	TokenIssuer        string
	TokenAudience      string

	// Identity provider
	IdentityAPIKey  string
	IdentityBaseURL string
	SecureTokenURL  string

	// Session
	SessionMaxAge int

	// Predict
	PredictTimeout  time.Duration
	PredictMaxBytes int64

	// Rate Limit (req/min)
	RateLimitGeneral int
	RateLimitPredict int

	// Catalog cache
	RedisURL        string
	CatalogCacheTTL time.Duration

	// Route policy
	RoutePolicyFile string

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.APIBaseURL = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "API_BASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.VerifierMode = VerifierMode(getEnvString("VERIFIER_MODE", string(VerifierModeLocal)))
	cfg.VerifyURL = os.Getenv("VERIFY_URL")
	cfg.TokenSecret = os.Getenv("TOKEN_SECRET")
	cfg.TokenPublicKeyFile = os.Getenv("TOKEN_PUBLIC_KEY_FILE")

	switch cfg.VerifierMode {
	case VerifierModeLocal:
		if cfg.TokenSecret == "" && cfg.TokenPublicKeyFile == "" {
			missing = append(missing, "TOKEN_SECRET or TOKEN_PUBLIC_KEY_FILE")
		}
	case VerifierModeRemote:
		if cfg.VerifyURL == "" {
			missing = append(missing, "VERIFY_URL")
		}
	default:
		return nil, fmt.Errorf("unsupported VERIFIER_MODE: %q (allowed: local, remote)", cfg.VerifierMode)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.APITimeout = getEnvDuration("API_TIMEOUT", 10*time.Second)
	cfg.TokenIssuer = getEnvString("TOKEN_ISSUER", "")
	cfg.TokenAudience = getEnvString("TOKEN_AUDIENCE", "")
	cfg.IdentityAPIKey = getEnvString("IDENTITY_API_KEY", "")
	cfg.IdentityBaseURL = getEnvString("IDENTITY_BASE_URL", "")
	cfg.SecureTokenURL = getEnvString("SECURE_TOKEN_URL", "")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 7*24*60*60)
	cfg.PredictTimeout = getEnvDuration("PREDICT_TIMEOUT", 15*time.Second)
	cfg.PredictMaxBytes = getEnvInt64("PREDICT_MAX_BYTES", 3*1024*1024)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPredict = getEnvInt("RATE_LIMIT_PREDICT", 10)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.CatalogCacheTTL = getEnvDuration("CATALOG_CACHE_TTL", 60*time.Second)
	cfg.RoutePolicyFile = getEnvString("ROUTE_POLICY_FILE", "")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.BaseURL)

	if cfg.VerifierMode == VerifierModeRemote && pointsToSelf(cfg.VerifyURL, cfg.BaseURL, cfg.ServerPort) {
		// remoteモードでは /api/validate-token を公開しないため、自分自身に向けると全リクエストが404で弾かれる
		return nil, fmt.Errorf("VERIFY_URL %q points to this server; use VERIFIER_MODE=local or a separate verifier deployment", cfg.VerifyURL)
	}

	return cfg, nil
}

// pointsToSelf はrawURLがこのサーバー（BASE_URLのホスト、またはループバックのSERVER_PORT）を指すかを返す。
func pointsToSelf(rawURL, baseURL, port string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	if base, err := url.Parse(baseURL); err == nil && base.Host != "" && strings.EqualFold(hostPort(base), hostPort(u)) {
		return true
	}
	switch strings.ToLower(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0":
		return defaultPort(u) == port
	}
	return false
}

func hostPort(u *url.URL) string {
	return u.Hostname() + ":" + defaultPort(u)
}

func defaultPort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if u.Scheme == "https" {
		return "443"
	}
	return "80"
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
