package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/vitrina-store/api/internal/domain/commit"
	"github.com/vitrina-store/api/internal/domain/editor"
	"github.com/vitrina-store/api/internal/domain/reader"
	"github.com/vitrina-store/api/internal/handler"
	"github.com/vitrina-store/api/internal/store"
	"github.com/vitrina-store/api/internal/store/github"
	"github.com/vitrina-store/api/internal/store/gitfs"
	"github.com/vitrina-store/api/internal/store/rediscache"
	"github.com/vitrina-store/api/pkg/health"
	"github.com/vitrina-store/api/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("backend", cfg.Store.Backend),
	)

	contentStore, err := newContentStore(cfg)
	if err != nil {
		return err
	}

	commitCfg := commit.Config{
		Owner:  cfg.Store.Owner,
		Repo:   cfg.Store.Repo,
		Branch: cfg.Store.Branch,
		Path:   cfg.Store.Path,
		// The gitfs backend writes locally and needs no credential.
		HasCredential: cfg.Store.Token != "" || cfg.Store.Backend == "gitfs",
	}
	if !commitCfg.Complete() {
		lg.Warn("store configuration incomplete; commits will be rejected",
			zap.String("owner", cfg.Store.Owner),
			zap.String("repo", cfg.Store.Repo),
			zap.Bool("hasToken", commitCfg.HasCredential),
		)
	}
	commitSvc := commit.NewService(commitCfg, contentStore)

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	if commitCfg.Complete() {
		healthSvc.AddReadinessCheck("store", 5*time.Second, storeCheck(contentStore, commitCfg.Ref()))
	}

	// Backup copy of the catalog document, optional.
	var backup *rediscache.Cache
	if cfg.Redis.URL != "" {
		backup, err = rediscache.New(cfg.Redis.URL, cfg.Redis.TTL)
		if err != nil {
			return errors.Wrap(err, "create backup cache")
		}
		defer backup.Close()

		healthSvc.AddReadinessCheck("redis", 5*time.Second, backup.Ping)
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Read path.
	rawURL := cfg.Catalog.RawURL
	if rawURL == "" && cfg.Store.Backend == "github" {
		rawURL = github.RawURL(commitCfg.Ref())
	}
	var readerBackup reader.Backup
	if backup != nil {
		readerBackup = backup
	}
	fetcher := reader.NewFetcher(reader.Config{
		RawURL:     rawURL,
		StaticPath: cfg.Catalog.StaticPath,
	}, readerBackup, lg.Named("reader"))

	// Admin editing capability, only when a token is configured.
	var session *editor.Session
	if cfg.Admin.Token != "" {
		var editorBackup editor.Backup
		if backup != nil {
			editorBackup = backup
		}
		session = editor.NewSession(commitSvc, fetcher, editorBackup, lg.Named("editor"))
	}

	h := handler.New(handler.Config{
		ImageBaseDir:  cfg.Catalog.ImageBaseDir,
		WhatsAppPhone: cfg.Catalog.WhatsAppPhone,
		AdminToken:    cfg.Admin.Token,
		StaticDir:     cfg.Catalog.StaticDir,
	}, commitSvc, fetcher, session, contentStore, lg.Named("handler"))

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-Admin-Token"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("vitrina-api", m.MeterProvider(), m.TracerProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// storeCheck reports content store reachability. A missing catalog file is
// healthy: the first commit creates it.
func storeCheck(cs store.ContentStore, ref store.FileRef) health.CheckFunc {
	return func(ctx context.Context) error {
		_, err := cs.Get(ctx, ref)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
}

// newContentStore selects the content store backend.
func newContentStore(cfg *Config) (store.ContentStore, error) {
	switch cfg.Store.Backend {
	case "github":
		return github.NewClient(cfg.Store.Token), nil
	case "gitfs":
		return gitfs.New(cfg.Store.GitDir), nil
	default:
		return nil, errors.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
