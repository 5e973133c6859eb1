package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pixelmill/internal/config"
	"pixelmill/internal/logging"
	"pixelmill/internal/store"
)

// Worker discovers pending items on a fixed interval (shortened after a
// failed pass) and hands each to the processor. A single goroutine runs all
// passes, so two passes never overlap
// and the conditional claim in the store keeps a rediscovered item from being
// processed twice.
type Worker struct {
	cfg       *config.Config
	store     *store.Store
	processor *Processor
	logger    *slog.Logger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	lastPass PassInfo
	passes   int
	lastErr  string
}

// PassInfo summarizes the most recent discovery pass.
type PassInfo struct {
	CompletedAt time.Time `json:"completedAt"`
	Discovered  int       `json:"discovered"`
	Failures    int       `json:"failures"`
}

// New creates a stopped worker.
func New(cfg *config.Config, st *store.Store, processor *Processor, logger *slog.Logger) *Worker {
	return &Worker{
		cfg:       cfg,
		store:     st,
		processor: processor,
		logger:    logging.NewComponentLogger(logger, "worker"),
	}
}

// Start launches the discovery loop. The loop runs one pass immediately so
// items left pending by a previous run are picked up without waiting a full
// interval.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go w.run(runCtx)
	w.logger.Info("worker started",
		logging.Duration("poll_interval", w.cfg.PollIntervalDuration()),
	)
	return nil
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.mu.Lock()
	w.running = false
	w.cancel = nil
	w.done = nil
	w.mu.Unlock()
	w.logger.Info("worker stopped")
}

// Running reports whether the discovery loop is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// LastPass returns a snapshot of the most recent completed pass.
func (w *Worker) LastPass() PassInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastPass
}

// Passes returns the number of discovery passes attempted since Start.
func (w *Worker) Passes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.passes
}

// LastError returns the failure from the most recent pass, or empty when the
// last pass succeeded.
func (w *Worker) LastError() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	for {
		err := w.pass(ctx)
		if ctx.Err() != nil {
			return
		}
		// A failed pass retries sooner than the regular interval.
		delay := w.cfg.PollIntervalDuration()
		if err != nil {
			delay = w.cfg.ErrorRetryIntervalDuration()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (w *Worker) pass(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	discovered, failures, err := w.RunOnce(ctx)

	w.mu.Lock()
	w.passes++
	w.lastErr = ""
	if err != nil {
		w.lastErr = err.Error()
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("discovery pass failed", logging.Error(err))
		return err
	}
	if discovered > 0 {
		w.logger.Info("discovery pass finished",
			logging.Int("items", discovered),
			logging.Int("failures", failures),
		)
	}
	return nil
}

// RunOnce performs a single discovery pass: load every pending item and
// process each in turn. Item-level errors are counted, not returned; only a
// failure to list work aborts the pass.
func (w *Worker) RunOnce(ctx context.Context) (discovered, failures int, err error) {
	items, err := w.store.ItemsByStatus(ctx, store.StatusPending)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending items: %w", err)
	}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		discovered++
		if err := w.processor.ProcessItem(ctx, item); err != nil {
			failures++
		}
	}

	w.mu.Lock()
	w.lastPass = PassInfo{
		CompletedAt: time.Now().UTC(),
		Discovered:  discovered,
		Failures:    failures,
	}
	w.mu.Unlock()
	return discovered, failures, nil
}
