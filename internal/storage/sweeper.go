package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is how often the sweeper runs when the configured
// interval is zero or negative.
const DefaultSweepInterval = 10 * time.Minute

// DefaultSweepTimeout bounds a single sweep pass so a stuck backend cannot
// wedge the background goroutine.
const DefaultSweepTimeout = 30 * time.Second

// Sweeper periodically removes expired entries from backends that do not
// expire them server-side. Backends like Redis handle expiry natively and
// do not need one; file and memory backends rely on the sweeper to keep
// yesterday's counters from accumulating forever.
type Sweeper struct {
	store    Storage
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

// NewSweeper creates a sweeper over the given storage and starts its
// background goroutine. A nil logger falls back to slog.Default.
func NewSweeper(store Storage, interval time.Duration, timeout time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if timeout <= 0 {
		timeout = DefaultSweepTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		store:    store,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "sweeper")),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Close stops the background goroutine. Safe to call more than once.
func (s *Sweeper) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

// sweepOnce runs a single sweep pass with a bounded deadline. Sweep errors
// are logged and otherwise ignored; expired entries already read as zero,
// so a failed pass costs disk space, not correctness.
func (s *Sweeper) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.store.Sweep(ctx); err != nil {
		s.logger.Warn("sweep failed",
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Debug("sweep completed",
		slog.Duration("elapsed", time.Since(start)),
	)
}
