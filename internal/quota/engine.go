// Package quota enforces per-identity daily action limits. The engine folds
// usage across the redundant identity keys, so evading one key still hits the
// counter stored under another, and every decision degrades open: a broken
// storage backend loosens limits, it never locks users out.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rozmerigpt/user-limiter/internal/clock"
	"github.com/rozmerigpt/user-limiter/internal/identity"
	"github.com/rozmerigpt/user-limiter/internal/storage"
)

// Action is a quota-limited activity type.
type Action string

const (
	ActionComments Action = "comments"
	ActionPosts    Action = "posts"
)

// Mode selects whether an evaluation consumes quota.
type Mode int

const (
	// Peek reads current usage without consuming.
	Peek Mode = iota
	// Consume increments usage when the action is allowed.
	Consume
)

// DefaultOperationTimeout bounds each storage call made during evaluation.
const DefaultOperationTimeout = 2 * time.Second

// Limits holds the per-day ceilings for each action, with a tightened set
// applied to suspicious callers.
type Limits struct {
	Comments           int
	Posts              int
	SuspiciousComments int
	SuspiciousPosts    int
}

// DefaultLimits returns the standard daily ceilings.
func DefaultLimits() Limits {
	return Limits{
		Comments:           10,
		Posts:              2,
		SuspiciousComments: 5,
		SuspiciousPosts:    1,
	}
}

// Effective returns the ceiling for action given the caller's suspicion
// state.
func (l Limits) Effective(action Action, suspicious bool) int {
	switch action {
	case ActionPosts:
		if suspicious {
			return l.SuspiciousPosts
		}
		return l.Posts
	default:
		if suspicious {
			return l.SuspiciousComments
		}
		return l.Comments
	}
}

// Decision is the outcome of a quota evaluation.
type Decision struct {
	Allowed   bool
	Used      int
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// Engine evaluates quota decisions against a counter store.
type Engine struct {
	store     storage.Storage
	clock     clock.Clock
	limits    Limits
	opTimeout time.Duration
	logger    *slog.Logger
}

// NewEngine creates an engine. A nil clk uses the system clock; a
// non-positive opTimeout uses DefaultOperationTimeout.
func NewEngine(store storage.Storage, clk clock.Clock, limits Limits, opTimeout time.Duration, logger *slog.Logger) *Engine {
	if clk == nil {
		clk = clock.System()
	}
	if opTimeout <= 0 {
		opTimeout = DefaultOperationTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		clock:     clk,
		limits:    limits,
		opTimeout: opTimeout,
		logger:    logger.With(slog.String("component", "quota")),
	}
}

// Evaluate computes a quota decision for the given identity keys. Usage is
// the maximum counter value across all keys, so rotating a single input
// (fresh user id, shifted user-agent) cannot mint a fresh allowance. In
// Consume mode an allowed decision writes the incremented count back under
// every key, re-synchronizing any key that was behind.
//
// Counters are scoped to the current UTC day and expire at the next UTC
// midnight; there is no way to reset them earlier.
func (e *Engine) Evaluate(ctx context.Context, keys identity.Keys, action Action, suspicious bool, mode Mode) Decision {
	now := e.clock.Now()
	date := clock.WindowDate(now)
	limit := e.limits.Effective(action, suspicious)
	resetAt := clock.NextReset(now)

	used := 0
	for _, key := range keys.All() {
		if count := e.readCount(ctx, counterKey(key, date, action)); count > used {
			used = count
		}
	}

	if mode == Peek {
		remaining := limit - used
		if remaining < 0 {
			remaining = 0
		}
		return Decision{
			Allowed:   used < limit,
			Used:      used,
			Remaining: remaining,
			Limit:     limit,
			ResetAt:   resetAt,
		}
	}

	if used >= limit {
		return Decision{
			Allowed:   false,
			Used:      used,
			Remaining: 0,
			Limit:     limit,
			ResetAt:   resetAt,
		}
	}

	next := used + 1
	ttl := clock.UntilReset(now)
	for _, key := range keys.All() {
		e.writeCount(ctx, counterKey(key, date, action), next, ttl)
	}

	return Decision{
		Allowed:   true,
		Used:      next,
		Remaining: limit - next,
		Limit:     limit,
		ResetAt:   resetAt,
	}
}

// readCount fetches a single counter. Failures count as zero usage so that
// storage trouble can only widen the allowance.
func (e *Engine) readCount(ctx context.Context, key string) int {
	opCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()

	count, err := e.store.GetCount(opCtx, key)
	if err != nil {
		e.logger.Warn("counter read failed, treating as zero",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return 0
	}
	return count
}

// writeCount stores a counter value. Write failures are logged and dropped;
// the decision already made stands.
func (e *Engine) writeCount(ctx context.Context, key string, count int, ttl time.Duration) {
	opCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()

	if err := e.store.SetCount(opCtx, key, count, ttl); err != nil {
		e.logger.Warn("counter write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// counterKey builds the storage key for one identity key on one UTC day.
// The date component makes day rollover a key change rather than a mutation,
// and the TTL on each entry garbage-collects the previous day.
func counterKey(identityKey, date string, action Action) string {
	return fmt.Sprintf("%s:%s:%s", identityKey, date, action)
}
