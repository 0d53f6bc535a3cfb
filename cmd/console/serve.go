package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"admintable.org/internal/config"
	"admintable.org/internal/console"
	"admintable.org/internal/dataclient"
	"admintable.org/internal/fakebackend"
	"admintable.org/internal/obs"
	"admintable.org/internal/render"
	"admintable.org/internal/storage"
	"admintable.org/internal/storage/pg"
	"admintable.org/internal/storage/sqlite"
)

var (
	fakeBackend bool
	migrateDB   bool
	listenAddr  string
)

const (
	pruneEvery = time.Hour
	pruneAfter = 7 * 24 * time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the console HTTP server",
	Long: `Run the console HTTP server.

With --fake-backend an in-process demo backend is started on a loopback port
and backend_url is ignored. Log in with admin/admin.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&fakeBackend, "fake-backend", false, "serve against an in-process demo backend")
	serveCmd.Flags().BoolVar(&migrateDB, "migrate", false, "apply bundled migrations when storage is postgres")
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address, overrides the config")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}

	logger := obs.InitLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if fakeBackend {
		addr, shutdown, err := startFakeBackend()
		if err != nil {
			return err
		}
		defer shutdown()
		cfg.BackendURL = "http://" + addr + fakebackend.APIPrefix
		logger.Info("fake backend started", zap.String("url", cfg.BackendURL))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()
	go pruneLoop(ctx, store, logger)

	data, err := dataclient.New(dataclient.Config{
		BaseURL:    cfg.BackendURL,
		HTTPClient: &http.Client{Timeout: cfg.GetRequestTimeout()},
		UserAgent:  "admintable-console/" + version,
	}, nil)
	if err != nil {
		return err
	}
	srv, err := console.New(console.Options{
		Data:               data,
		Store:              store,
		Renderer:           render.New(render.WithBreakThreshold(cfg.Render.BreakThreshold)),
		Version:            version,
		CookieName:         cfg.Session.CookieName,
		SecureCookie:       cfg.Session.Secure,
		SessionIdle:        cfg.GetSessionIdle(),
		LiveReconnectDelay: cfg.GetReconnectDelay(),
		LiveHistory:        cfg.Live.HistoryLength,
		LoginBurst:         cfg.LoginRate.Burst,
		LoginPerSecond:     cfg.LoginRate.PerSecond,
	})
	if err != nil {
		return err
	}
	defer srv.Close()
	go evictLoop(ctx, srv, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("console listening",
			zap.String("addr", httpSrv.Addr),
			zap.String("backend", cfg.BackendURL),
			zap.String("version", version),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		store, err := pg.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if migrateDB {
			if err := store.Migrate(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return store, nil
	default:
		return storage.NewMemory(), nil
	}
}

// evictLoop drops idle browser sessions even when no requests arrive.
func evictLoop(ctx context.Context, srv *console.Server, logger *zap.Logger) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := srv.EvictIdleSessions(); n > 0 {
				logger.Debug("evicted idle sessions", zap.Int("sessions", n))
			}
		}
	}
}

type pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// pruneLoop drops session values of browsers that have not been seen for a
// week. Only stores that keep timestamps support it.
func pruneLoop(ctx context.Context, store storage.Store, logger *zap.Logger) {
	p, ok := store.(pruner)
	if !ok {
		return
	}
	t := time.NewTicker(pruneEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := p.Prune(ctx, now.Add(-pruneAfter))
			if err != nil {
				logger.Warn("prune sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("pruned sessions", zap.Int64("rows", n))
			}
		}
	}
}

func startFakeBackend() (string, func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}
	srv := &http.Server{Handler: fakebackend.New().Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	return ln.Addr().String(), func() { _ = srv.Close() }, nil
}
