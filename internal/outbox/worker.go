// Package outbox runs the durable side effects recorded next to order changes:
// inventory reconciliation and order event fan-out.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"restaurant-fulfillment/internal/domain"
)

// Handler executes one task. Returning an error schedules a retry unless the
// error is wrapped with Permanent.
type Handler interface {
	Handle(ctx context.Context, task domain.Task) error
}

type HandlerFunc func(ctx context.Context, task domain.Task) error

func (f HandlerFunc) Handle(ctx context.Context, task domain.Task) error { return f(ctx, task) }

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks an error that retrying cannot fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

type taskStore interface {
	Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]domain.Task, error)
	Complete(ctx context.Context, id string) error
	Retry(ctx context.Context, id string, nextRunAt time.Time, lastErr string) error
	Bury(ctx context.Context, id string, lastErr string) error
}

type Options struct {
	PollInterval time.Duration
	BatchSize    int
	TaskTimeout  time.Duration
}

type periodic struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
	lastRun  time.Time
}

type Worker struct {
	store    taskStore
	logger   zerolog.Logger
	opts     Options
	handlers map[domain.TaskKind]Handler
	jobs     []*periodic
	now      func() time.Time
	mu       sync.Mutex
}

func NewWorker(store taskStore, logger zerolog.Logger, opts Options) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 5 * time.Second
	}
	return &Worker{
		store:    store,
		logger:   logger,
		opts:     opts,
		handlers: map[domain.TaskKind]Handler{},
		now:      time.Now,
	}
}

func (w *Worker) Register(kind domain.TaskKind, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[kind] = h
}

// Every runs fn at most once per interval from the poll loop.
func (w *Worker) Every(name string, interval time.Duration, fn func(ctx context.Context) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.jobs = append(w.jobs, &periodic{name: name, interval: interval, fn: fn})
}

// Backoff is the delay before the next try after the given number of attempts:
// 2s, 4s, 8s ... capped at five minutes.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	const ceiling = 5 * time.Minute
	d := 2 * time.Second
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return d
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Dur("poll", w.opts.PollInterval).Int("batch", w.opts.BatchSize).Msg("outbox: worker started")
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("outbox: poll failed")
		}
		w.runPeriodic(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("outbox: worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce claims one batch and processes it. It returns the number of tasks handled.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	lease := w.opts.TaskTimeout * 2
	tasks, err := w.store.Claim(ctx, w.now(), w.opts.BatchSize, lease)
	if err != nil {
		return 0, fmt.Errorf("claim tasks: %w", err)
	}
	for _, task := range tasks {
		w.process(ctx, task)
	}
	return len(tasks), nil
}

func (w *Worker) process(ctx context.Context, task domain.Task) {
	log := w.logger.With().Str("task_id", task.ID).Str("kind", string(task.Kind)).Str("order_id", task.OrderID).Int("attempt", task.Attempts).Logger()

	w.mu.Lock()
	h, ok := w.handlers[task.Kind]
	w.mu.Unlock()
	if !ok {
		log.Error().Msg("outbox: no handler registered")
		if err := w.store.Bury(ctx, task.ID, "no handler for "+string(task.Kind)); err != nil {
			log.Error().Err(err).Msg("outbox: bury failed")
		}
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.opts.TaskTimeout)
	err := h.Handle(taskCtx, task)
	cancel()

	switch {
	case err == nil:
		if err := w.store.Complete(ctx, task.ID); err != nil {
			log.Error().Err(err).Msg("outbox: complete failed")
			return
		}
		log.Debug().Msg("outbox: task done")
	case IsPermanent(err) || task.Attempts >= task.MaxAttempts:
		log.Error().Err(err).Int("max_attempts", task.MaxAttempts).Msg("outbox: task dead")
		if err := w.store.Bury(ctx, task.ID, err.Error()); err != nil {
			log.Error().Err(err).Msg("outbox: bury failed")
		}
	default:
		next := w.now().Add(Backoff(task.Attempts))
		log.Warn().Err(err).Time("next_run_at", next).Msg("outbox: task failed, scheduled for retry")
		if err := w.store.Retry(ctx, task.ID, next, err.Error()); err != nil {
			log.Error().Err(err).Msg("outbox: reschedule failed")
		}
	}
}

func (w *Worker) runPeriodic(ctx context.Context) {
	w.mu.Lock()
	jobs := append([]*periodic(nil), w.jobs...)
	w.mu.Unlock()
	now := w.now()
	for _, job := range jobs {
		if !job.lastRun.IsZero() && now.Sub(job.lastRun) < job.interval {
			continue
		}
		job.lastRun = now
		if err := job.fn(ctx); err != nil {
			w.logger.Error().Err(err).Str("job", job.name).Msg("outbox: periodic job failed")
		}
	}
}
