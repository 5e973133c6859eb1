package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"pixelmill/internal/config"
	"pixelmill/internal/fetch"
	"pixelmill/internal/logging"
	"pixelmill/internal/notifications"
	"pixelmill/internal/server"
	"pixelmill/internal/store"
	"pixelmill/internal/transform"
	"pixelmill/internal/worker"
)

// Daemon composes the store, HTTP server, and background worker, and
// enforces single-instance execution through a file lock.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	worker *worker.Worker
	server *server.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	Address       string
	DatabasePath  string
	LockFilePath  string
	WorkerRunning bool
	LastPass      worker.PassInfo
}

// New wires the full pipeline on top of an opened store.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}

	fetcher := fetch.NewFetcher(cfg.FetchTimeoutDuration(), logger)
	transformer := transform.NewTransformer(cfg, logger)
	notifier := notifications.NewService(cfg)
	processor := worker.NewProcessor(cfg, st, fetcher, transformer, notifier, logger)
	w := worker.New(cfg, st, processor, logger)
	srv, err := server.New(cfg, st, w, logger)
	if err != nil {
		return nil, fmt.Errorf("init server: %w", err)
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "pixelmill.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		worker:   w,
		server:   srv,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, then brings up the HTTP server and the
// discovery loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another pixelmill daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.server.Start(runCtx); err != nil {
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return fmt.Errorf("start server: %w", err)
	}
	if err := d.worker.Start(runCtx); err != nil {
		d.server.Stop()
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return fmt.Errorf("start worker: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("pixelmill daemon started",
		logging.String("address", d.server.Addr()),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop halts the worker and server and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.worker.Stop()
	d.server.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("pixelmill daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the HTTP server's bound address while running.
func (d *Daemon) Addr() string {
	return d.server.Addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:       d.running.Load(),
		Address:       d.server.Addr(),
		DatabasePath:  d.cfg.DatabasePath(),
		LockFilePath:  d.lockPath,
		WorkerRunning: d.worker.Running(),
		LastPass:      d.worker.LastPass(),
	}
}
