// Package app wires the service's components together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	httpapi "github.com/histdb/histdb/internal/api/http"
	"github.com/histdb/histdb/internal/backup"
	"github.com/histdb/histdb/internal/config"
	"github.com/histdb/histdb/internal/ingest"
	"github.com/histdb/histdb/internal/logging"
	"github.com/histdb/histdb/internal/metrics"
	"github.com/histdb/histdb/internal/server"
	"github.com/histdb/histdb/internal/storage"
	"github.com/histdb/histdb/internal/store"
)

// App owns the store, the ingestion pipeline, the HTTP server and the
// optional backup daemon.
type App struct {
	cfg *config.Config

	metrics  *metrics.Metrics
	store    *store.Store
	pipeline *ingest.Pipeline
	backupD  *backup.Daemon
	shutdown *server.ShutdownManager
	httpSrv  *server.GracefulHTTPServer

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// New validates the configuration and prepares an App. Start launches it.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	return &App{cfg: cfg}, nil
}

// Start opens the database, starts the pipeline and the HTTP server, and
// launches the backup daemon when enabled.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	a.metrics = metrics.New()
	a.shutdown = server.NewShutdownManager(server.ShutdownConfig{})

	st, err := store.Open(a.cfg.Database.Path, store.Options{
		BusyTimeout: a.cfg.Database.BusyTimeout,
		MaxSessions: a.cfg.Ingest.Workers + 1,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.store = st
	logging.Info().Str("path", st.Path()).Msg("store opened")

	a.pipeline = ingest.NewPipeline(st, a.metrics, ingest.Config{
		QueueCapacity: a.cfg.Ingest.QueueCapacity,
		Workers:       a.cfg.Ingest.Workers,
		DrainTimeout:  a.cfg.Ingest.DrainTimeout,
	})
	if err := a.pipeline.Start(ctx); err != nil {
		st.Close()
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	if a.cfg.Backup.Enabled {
		if err := a.startBackup(ctx); err != nil {
			a.pipeline.Shutdown(ctx)
			st.Close()
			return fmt.Errorf("failed to start backup daemon: %w", err)
		}
	}

	// Shutdown order: stop intake and drain the queue first, then stop
	// the backup schedule, then close the store (LIFO closers).
	a.shutdown.OnShutdownStart(func() {
		a.pipeline.Shutdown(context.Background())
		if a.backupD != nil {
			a.backupD.Stop()
		}
	})
	a.shutdown.RegisterCloser(server.CloserFunc(a.store.Close))

	a.startHTTP()
	return nil
}

func (a *App) startBackup(ctx context.Context) error {
	backend, err := a.newBackend(ctx)
	if err != nil {
		return err
	}

	a.backupD = backup.NewDaemon(backup.Config{
		Interval: a.cfg.Backup.Interval,
		Retain:   a.cfg.Backup.Retain,
		WorkDir:  a.cfg.Backup.WorkDir,
	}, a.store, backend, a.metrics)
	a.backupD.Start()
	return nil
}

func (a *App) newBackend(ctx context.Context) (storage.Backend, error) {
	switch a.cfg.Backup.Storage.Type {
	case "local":
		return storage.NewLocal(a.cfg.Backup.Storage.Path)
	case "s3":
		s3cfg := a.cfg.Backup.Storage.S3
		return storage.NewS3(ctx, s3cfg.Bucket, storage.S3Config{
			Region:   s3cfg.Region,
			Endpoint: s3cfg.Endpoint,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.cfg.Backup.Storage.Type)
	}
}

func (a *App) startHTTP() {
	handler := httpapi.NewRouter(httpapi.RouterConfig{
		Pipeline:           a.pipeline,
		Metrics:            a.metrics,
		ShutdownMiddleware: a.shutdown.Middleware(),
	})

	srv := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.httpSrv = server.NewGracefulHTTPServer(srv, a.shutdown)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logging.Info().Str("addr", a.cfg.HTTP.Addr).Msg("HTTP server listening")
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error().Err(err).Msg("HTTP server error")
		}
	}()
}

// Stop performs a full graceful shutdown: reject new requests, drain the
// queue, stop the backup schedule, close the store.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	err := a.shutdown.Shutdown(ctx, "stop requested")
	a.wg.Wait()
	return err
}

// WaitForShutdown blocks until SIGINT/SIGTERM arrives or ctx is cancelled,
// then runs the shutdown sequence.
func (a *App) WaitForShutdown(ctx context.Context) error {
	err := a.shutdown.ListenForSignals(ctx)
	a.wg.Wait()

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	return err
}

// Pipeline exposes the ingestion pipeline, for tests and introspection.
func (a *App) Pipeline() *ingest.Pipeline {
	return a.pipeline
}
