// Package supervisor provides a cooperative ticker-worker abstraction for
// the core's background loops (RAID health monitor, audit flush, memory
// pressure poller). Workers are registered in start
// order; shutdown joins them in reverse-registration order.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/r3e-network/warehouse-core/infrastructure/logging"
)

type tickerWorkerConfig struct {
	name           string
	runImmediately bool
}

// Option configures AddTickerWorker behavior.
type Option func(*tickerWorkerConfig)

// WithName sets a friendly name used in worker error logs.
func WithName(name string) Option {
	return func(cfg *tickerWorkerConfig) {
		cfg.name = name
	}
}

// WithImmediate causes the worker to run once immediately on start, before
// waiting for the first ticker interval.
func WithImmediate() Option {
	return func(cfg *tickerWorkerConfig) {
		cfg.runImmediately = true
	}
}

type worker struct {
	name string
	stop chan struct{}
	once sync.Once
	run  func(ctx context.Context)
}

// Supervisor owns a set of cooperative background workers and joins them in
// reverse-registration order on Shutdown.
type Supervisor struct {
	mu      sync.Mutex
	workers []*worker
	logger  *logging.Logger
	wg      sync.WaitGroup
}

// New constructs a Supervisor that logs worker errors through logger. If
// logger is nil, a default logger is used.
func New(logger *logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NewFromEnv("supervisor")
	}
	return &Supervisor{logger: logger}
}

// AddTickerWorker registers a periodic background worker invoked at
// interval until the Supervisor is shut down or ctx is cancelled. fn errors
// are logged and do not stop the loop.
func (s *Supervisor) AddTickerWorker(interval time.Duration, fn func(context.Context) error, opts ...Option) {
	cfg := tickerWorkerConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	w := &worker{name: cfg.name, stop: make(chan struct{})}
	w.run = func(ctx context.Context) {
		logErr := func(err error) {
			if err == nil {
				return
			}
			entry := s.logger.WithContext(ctx).WithError(err)
			if w.name != "" {
				entry = entry.WithField("worker", w.name)
			}
			entry.Warn("worker error")
		}

		if cfg.runImmediately {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			default:
			}
			logErr(fn(ctx))
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				logErr(fn(ctx))
			}
		}
	}

	s.mu.Lock()
	s.workers = append(s.workers, w)
	s.mu.Unlock()
}

// Start launches every registered worker as a background goroutine.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	workers := append([]*worker(nil), s.workers...)
	s.mu.Unlock()

	for _, w := range workers {
		w := w
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			w.run(ctx)
		}()
	}
}

// Shutdown stops all registered workers in reverse-registration order and
// waits for them to exit.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	workers := append([]*worker(nil), s.workers...)
	s.mu.Unlock()

	for i := len(workers) - 1; i >= 0; i-- {
		w := workers[i]
		w.once.Do(func() {
			close(w.stop)
		})
	}
	s.wg.Wait()
}

// WorkerCount returns the number of registered workers.
func (s *Supervisor) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}
