// Package abuse flags network addresses that present an implausible number
// of distinct user ids. Browser extensions attach a client-declared user id
// to every request; an address cycling through many ids is treated as one
// actor rotating identities rather than many users behind one address.
package abuse

import (
	"context"
	"log/slog"
	"time"

	"github.com/rozmerigpt/user-limiter/internal/identity"
	"github.com/rozmerigpt/user-limiter/internal/storage"
)

const (
	// DefaultThreshold is the number of distinct user ids an address may
	// present before it is considered suspicious. The count must strictly
	// exceed the threshold: with the default of 3 the fourth distinct id
	// flips the address.
	DefaultThreshold = 3

	// DefaultRetention is how long an observed (address, user id) pairing
	// stays in the window. Addresses age back to clean once their
	// observations expire.
	DefaultRetention = 7 * 24 * time.Hour

	// DefaultOperationTimeout bounds each storage call made by Observe.
	DefaultOperationTimeout = 2 * time.Second
)

// Config holds the tunables for a Monitor. Zero values fall back to the
// package defaults.
type Config struct {
	Threshold        int
	Retention        time.Duration
	OperationTimeout time.Duration
}

// Monitor tracks distinct user ids per network address over a rolling
// retention window. Suspicion is recomputed from the stored observations on
// every call, so it decays on its own as observations expire.
type Monitor struct {
	store     storage.Storage
	threshold int
	retention time.Duration
	opTimeout time.Duration
	logger    *slog.Logger
}

// NewMonitor creates a monitor backed by the given storage.
func NewMonitor(store storage.Storage, config Config, logger *slog.Logger) *Monitor {
	if config.Threshold <= 0 {
		config.Threshold = DefaultThreshold
	}
	if config.Retention <= 0 {
		config.Retention = DefaultRetention
	}
	if config.OperationTimeout <= 0 {
		config.OperationTimeout = DefaultOperationTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		store:     store,
		threshold: config.Threshold,
		retention: config.Retention,
		opTimeout: config.OperationTimeout,
		logger:    logger.With(slog.String("component", "abuse")),
	}
}

// Observe records that userID was seen from address and reports whether the
// address is now suspicious. Re-observing a known id refreshes the window
// without growing the count. Storage failures are swallowed: an address that
// cannot be checked is treated as clean so that a storage outage never
// tightens anyone's limits.
func (m *Monitor) Observe(ctx context.Context, address, userID string) bool {
	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	count, err := m.store.AddIdentity(opCtx, address, userID, m.retention)
	if err != nil {
		m.logger.Warn("identity observation failed, treating address as clean",
			slog.String("error", err.Error()),
		)
		return false
	}

	suspicious := count > m.threshold
	if suspicious && count == m.threshold+1 {
		m.logger.Info("address crossed identity churn threshold",
			slog.String("address_digest", identity.Digest(address)),
			slog.Int("distinct_ids", count),
			slog.Int("threshold", m.threshold),
		)
	}
	return suspicious
}

// Threshold returns the configured distinct-id threshold.
func (m *Monitor) Threshold() int {
	return m.threshold
}
