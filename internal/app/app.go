// Package app はsouvenirの起動処理を提供する。
// 設定とログを初期化し、サブコマンドに応じてWebサーバー、CLIでの画像分類、
// ヘルスチェックのいずれかを実行する。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/souvenir/internal/auth"
	"github.com/hitoshi/souvenir/internal/catalog"
	"github.com/hitoshi/souvenir/internal/config"
	"github.com/hitoshi/souvenir/internal/gate"
	"github.com/hitoshi/souvenir/internal/handler"
	"github.com/hitoshi/souvenir/internal/identity"
	"github.com/hitoshi/souvenir/internal/logger"
	"github.com/hitoshi/souvenir/internal/metrics"
	"github.com/hitoshi/souvenir/internal/middleware"
	"github.com/hitoshi/souvenir/internal/predict"
	"github.com/hitoshi/souvenir/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// tokenLeeway はローカル検証で許容する時刻のずれ。
const tokenLeeway = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを作り直す
	log := logger.SetupDefault(w, cfg.LogLevel)

	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	// predictの結果はwに出力するため、ログは標準エラーに分ける
	logOut := w
	if cmd == CommandPredict {
		logOut = os.Stderr
	}

	cfg, log, err := Init(logOut)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandPredict:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runPredict(ctx, cfg, log, w, os.Stderr, args[1:])
	default:
		return runServe(cfg, log)
	}
}

// server はserveモードで起動する依存関係一式。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
	closers     []func() error
}

// Close はサーバーが保持するリソースを解放する。
func (s *server) Close() {
	s.rateLimiter.Stop()
	for _, c := range s.closers {
		if err := c(); err != nil {
			slog.Warn("failed to close resource", slog.String("error", err.Error()))
		}
	}
}

// newServer は設定から全依存関係をワイヤリングし、ルーターを構築する。
func newServer(ctx context.Context, cfg *config.Config, log *slog.Logger) (*server, error) {
	srv := &server{}

	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. ゲート
	policy, err := gate.LoadPolicy(cfg.RoutePolicyFile)
	if err != nil {
		return nil, err
	}
	verifier, tokenVerifier, err := newVerifiers(cfg, log)
	if err != nil {
		return nil, err
	}

	// 3. ドメインAPIクライアント（Redisキャッシュは任意）
	var cache catalog.Cache
	if cfg.RedisURL != "" {
		rdb, err := catalog.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		srv.closers = append(srv.closers, rdb.Close)
		cache = catalog.NewRedisCache(rdb)
		log.Info("catalog cache enabled", slog.Duration("ttl", cfg.CatalogCacheTTL))
	}
	catalogClient := catalog.NewClient(catalog.Config{
		HTTPClient: &http.Client{Timeout: cfg.APITimeout},
		BaseURL:    cfg.APIBaseURL,
		Cache:      cache,
		CacheTTL:   cfg.CatalogCacheTTL,
		Sanitizer:  security.NewSanitizer(),
		Metrics:    collector,
		Logger:     log,
	})

	// 4. IDプロバイダ
	identityClient := identity.NewClient(
		&http.Client{Timeout: cfg.APITimeout},
		cfg.IdentityAPIKey, cfg.IdentityBaseURL, cfg.SecureTokenURL, log,
	)

	// 5. 画像分類フロー（タイムアウトはクライアント側のcontextで管理する）
	predictClient := predict.NewClient(&http.Client{}, cfg.APIBaseURL, cfg.PredictTimeout, log)
	fetcher := security.NewImageFetcher(cfg.PredictTimeout, cfg.PredictMaxBytes)
	flow := predict.NewFlow(predictClient, fetcher, cfg.PredictMaxBytes, collector, log)

	// 6. ルーター
	srv.rateLimiter = middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitPredict),
	)
	srv.handler = handler.NewRouter(&handler.RouterDeps{
		Policy:        policy,
		Verifier:      verifier,
		TokenVerifier: tokenVerifier,

		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),
		RateLimiter:    srv.rateLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,

		Identity: identityClient,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		Catalog: catalogClient,
		Flow:    flow,
		Logger:  log,
	})

	return srv, nil
}

// newVerifiers はゲートが使う検証器と、/api/validate-token で公開するローカル検証器を返す。
// remoteモードではローカル検証器を持たないため、2つ目の戻り値はnilになる。
func newVerifiers(cfg *config.Config, log *slog.Logger) (auth.Verifier, auth.Verifier, error) {
	if cfg.VerifierMode == config.VerifierModeRemote {
		log.Info("using remote token verifier", slog.String("verify_url", cfg.VerifyURL))
		return auth.NewRemoteVerifier(&http.Client{Timeout: cfg.APITimeout}, cfg.VerifyURL, log), nil, nil
	}

	vcfg := auth.TokenVerifierConfig{
		Secret:   []byte(cfg.TokenSecret),
		Issuer:   cfg.TokenIssuer,
		Audience: cfg.TokenAudience,
		Leeway:   tokenLeeway,
	}
	if cfg.TokenPublicKeyFile != "" {
		key, err := auth.LoadRSAPublicKey(cfg.TokenPublicKeyFile)
		if err != nil {
			return nil, nil, err
		}
		vcfg.PublicKey = key
	}
	tv, err := auth.NewTokenVerifier(vcfg)
	if err != nil {
		return nil, nil, err
	}
	return tv, tv, nil
}

// runServe はWebサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config, log *slog.Logger) error {
	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	srv, err := newServer(initCtx, cfg, log)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: srv.handler,
		// 画像分類の待ち時間より長くしておく
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.PredictTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		log.Info("web server starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	log.Info("shutting down web server...")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("web server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
