package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/yourusername/sessionauth/internal/auth"
	"github.com/yourusername/sessionauth/internal/config"
	"github.com/yourusername/sessionauth/internal/jobs"
	"github.com/yourusername/sessionauth/internal/logging"
	"github.com/yourusername/sessionauth/internal/observability"
	"github.com/yourusername/sessionauth/internal/platform"
	"github.com/yourusername/sessionauth/internal/session"
	"github.com/yourusername/sessionauth/internal/users"
)

const shutdownTimeout = 10 * time.Second

// deps はサーバーが利用する依存をまとめたものです。
type deps struct {
	users    users.Repository
	sessions session.Store
	sweeper  session.Sweeper
	metrics  *observability.Metrics
	sweep    *jobs.Manager
	closers  []func()
}

// Close は後から開いたものから順に閉じます。
func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	logger := logging.Setup(cfg.LogFormat, cfg.LogLevel, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		logging.LogError(logger, "failed to initialize dependencies", err)
		return err
	}
	defer d.Close()

	if d.sweep != nil {
		if err := d.sweep.Start(); err != nil {
			logging.LogError(logger, "failed to start session sweep", err)
			return err
		}
	}

	router, err := newRouter(cfg, logger, d)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		logger.Info("starting API server", "addr", srv.Addr, "mode", cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return oops.Code("SERVER_FAILED").Wrap(err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildDeps は設定に従ってストアを選び、接続を開きます。
func buildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{}
	if cfg.MetricsEnabled {
		d.metrics = observability.NewMetrics()
	}

	var pool *pgxpool.Pool
	if cfg.UserStore == config.StorePostgres || cfg.SessionStore == config.StorePostgres {
		p, err := platform.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pool = p
		d.closers = append(d.closers, pool.Close)

		if cfg.AutoMigrate {
			if err := platform.Migrate(ctx, pool); err != nil {
				d.Close()
				return nil, err
			}
			logger.Info("database migrations applied")
		}
	}

	switch cfg.UserStore {
	case config.StorePostgres:
		d.users = users.NewPostgresRepository(pool)
	default:
		logger.Warn("using in-memory user store; users are lost on restart")
		d.users = users.NewMemoryRepository()
	}

	ttl := cfg.SessionTTL()
	switch cfg.SessionStore {
	case config.StoreRedis:
		client, err := platform.OpenRedis(ctx, cfg.SessionRedisURL)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, func() { _ = client.Close() })
		d.sessions = session.NewRedisStore(client, ttl)
	case config.StorePostgres:
		store := session.NewPostgresStore(pool, ttl)
		d.sessions = store
		d.sweeper = store
	default:
		store := session.NewMemoryStore(ttl, cfg.SweepInterval())
		d.closers = append(d.closers, func() { _ = store.Close() })
		d.sessions = store
	}

	if d.sweeper != nil && !cfg.SweepEnabled() {
		logger.Warn("QUEUE_REDIS_URL is not set; expired sessions are ignored but not deleted")
	}
	if cfg.SweepEnabled() && d.sweeper != nil {
		manager, closeSweep, err := setupSweep(ctx, cfg, d.sweeper, d.metrics, logger)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.sweep = manager
		d.closers = append(d.closers, closeSweep)
	}
	return d, nil
}

// newRouter はミドルウェアとルートを組み立てます。
func newRouter(cfg *config.Config, logger *slog.Logger, d *deps) (*gin.Engine, error) {
	router := gin.New()
	router.Use(logging.Middleware(logger), auth.Recovery(logger))

	// セッションクッキーを送れるよう資格情報を許可し、リクエストIDヘッダーを受け渡す。
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", logging.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{logging.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	secret, err := sessionSecret(cfg, logger)
	if err != nil {
		return nil, err
	}
	cookie := cookieOptions(cfg)
	ginStore := session.NewGinStore(d.sessions, cookie, secret)
	router.Use(sessions.Sessions(cfg.SessionCookieName, ginStore), auth.ErrorHandler(logger))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"api": "up"})
	})
	router.GET("/health", handleHealth(d.sweep, logger))
	if d.metrics != nil {
		router.GET("/metrics", gin.WrapH(d.metrics.Handler()))
	}

	manager := auth.NewManager(d.users, auth.NewBcryptHasher(cfg.BcryptCost), ginStore, auth.Options{
		CookieName: cfg.SessionCookieName,
		Cookie:     cookie,
		Rolling:    cfg.SessionRolling,
		Metrics:    d.metrics,
	})
	manager.RegisterRoutes(router)
	return router, nil
}

// sessionSecret は署名鍵を返します。未設定なら開発用に一時的な鍵を生成します。
func sessionSecret(cfg *config.Config, logger *slog.Logger) ([]byte, error) {
	if cfg.SessionSecret != "" {
		return []byte(cfg.SessionSecret), nil
	}
	key := securecookie.GenerateRandomKey(32)
	if key == nil {
		return nil, oops.Code("SESSION_SECRET_GENERATION_FAILED").Errorf("failed to generate session secret")
	}
	logger.Warn("SESSION_SECRET is not set; sessions will not survive a restart")
	return key, nil
}

func cookieOptions(cfg *config.Config) sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionTTL().Seconds()),
		Secure:   cfg.SessionCookieSecure,
		HttpOnly: cfg.SessionCookieHTTPOnly,
		SameSite: parseSameSite(cfg.SessionSameSite),
	}
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(sweep *jobs.Manager, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status":  "ok",
			"service": "sessionauth-api",
			"version": version,
		}
		if sweep != nil {
			record, err := sweep.LastRun(c.Request.Context())
			if err != nil {
				logging.LogError(logger, "failed to read last sweep run", err)
				body["sweep"] = gin.H{"status": "unknown"}
			} else if record != nil {
				body["sweep"] = record
			}
		}
		c.JSON(http.StatusOK, body)
	}
}
