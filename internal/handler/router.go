package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/souvenir/internal/auth"
	"github.com/hitoshi/souvenir/internal/gate"
	"github.com/hitoshi/souvenir/internal/metrics"
	"github.com/hitoshi/souvenir/internal/middleware"
)

// Catalog はストアフロント、カート、管理画面、登録が必要とするドメインAPIの操作をまとめたもの。
type Catalog interface {
	PageCatalog
	CartService
	DashboardService
	ProfileCreator
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ゲート
	Policy   *gate.Policy
	Verifier auth.Verifier
	// TokenVerifier は /api/validate-token で使うローカル検証器。nilの場合はエンドポイントを登録しない。
	TokenVerifier auth.Verifier

	// ミドルウェア依存
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig
	CORSAllowedOrigin string

	// 認証
	Identity   IdentityProvider
	AuthConfig AuthHandlerConfig

	// ドメインAPI
	Catalog Catalog

	// 画像分類
	Flow PredictFlow

	Logger *slog.Logger
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → Logging → StatusMetrics → SecurityHeaders → Gate
//
// ページルートにはさらに RateLimit(General) → CSRF を適用し、POST /predict には
// 画像分類用のレート制限を追加する。/api/* にはCORSを適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewStatusMetricsMiddleware(deps.Metrics))
	// HTTPSでcookieを配る構成ではHSTSも付与する
	r.Use(middleware.NewSecurityHeadersMiddleware(middleware.SecurityHeadersConfig{HSTS: deps.CSRF.CookieSecure}))
	r.Use(middleware.NewGateMiddleware(deps.Policy, deps.Verifier, deps.Metrics, deps.AuthConfig.sessionCookies(), deps.Logger))

	authHandler := NewAuthHandler(deps.Identity, deps.Catalog, deps.AuthConfig, deps.Logger)
	pageHandler := NewPageHandler(deps.Catalog)
	cartHandler := NewCartHandler(deps.Catalog)
	dashboardHandler := NewDashboardHandler(deps.Catalog)
	predictHandler := NewPredictHandler(deps.Flow, deps.Logger)

	// --- 運用エンドポイント ---
	r.Get("/health", Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))
		if deps.TokenVerifier != nil {
			r.Method(http.MethodPost, "/validate-token", NewValidateTokenHandler(deps.TokenVerifier, deps.Logger))
		}
	})

	// --- ページ ---
	// ゲートの判定はグローバルに適用済み
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Get("/", pageHandler.Home)
		r.Get("/markets", pageHandler.Markets)
		r.Get("/merchants", pageHandler.Merchants)
		r.Get("/products", pageHandler.Products)
		r.Get("/products/{id}", pageHandler.Product)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/login", authHandler.LoginPage)
			r.Post("/login", authHandler.Login)
			r.Get("/register", authHandler.RegisterPage)
			r.Post("/register", authHandler.Register)
			r.Post("/logout", authHandler.Logout)
		})

		r.Get("/predict", predictHandler.Page)
		r.With(deps.RateLimiter.PredictMiddleware()).Post("/predict", predictHandler.Submit)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/items", cartHandler.Items)
			r.Post("/items", cartHandler.Add)
			r.Post("/checkout", cartHandler.Checkout)
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/", dashboardHandler.Index)
			r.Route("/{resource}", func(r chi.Router) {
				r.Get("/", dashboardHandler.List)
				r.Post("/", dashboardHandler.Create)
				r.Get("/{id}", dashboardHandler.Get)
				r.Put("/{id}", dashboardHandler.Update)
				r.Delete("/{id}", dashboardHandler.Delete)
			})
		})
	})

	return r
}
