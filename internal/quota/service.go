package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Masterminds/semver/v3"

	"github.com/rozmerigpt/user-limiter/internal/abuse"
	"github.com/rozmerigpt/user-limiter/internal/identity"
	"github.com/rozmerigpt/user-limiter/internal/models"
	"github.com/rozmerigpt/user-limiter/internal/observability"
)

// DefaultRemainingOnFailure is the remaining count reported when an
// evaluation fails outright and the request is waved through. Kept at 1 so a
// degraded service stays usable without advertising a full allowance.
const DefaultRemainingOnFailure = 1

// Service ties quota evaluation together: it derives identity keys from the
// request context, runs the abuse check, evaluates the counter fold, and
// shapes the wire response.
type Service struct {
	engine           *Engine
	monitor          *abuse.Monitor
	metrics          *observability.QuotaMetrics
	minClientVersion *semver.Version
	logger           *slog.Logger
}

// ServiceOption configures optional service collaborators.
type ServiceOption func(*Service)

// WithMetrics attaches decision metrics. A nil value is accepted and
// disables recording.
func WithMetrics(metrics *observability.QuotaMetrics) ServiceOption {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithMinClientVersion sets the version below which responses carry an
// update advisory in their message. Outdated clients are never rejected.
func WithMinClientVersion(v *semver.Version) ServiceOption {
	return func(s *Service) {
		s.minClientVersion = v
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a quota service with the given engine and abuse
// monitor.
func NewService(engine *Engine, monitor *abuse.Monitor, opts ...ServiceOption) *Service {
	s := &Service{
		engine:  engine,
		monitor: monitor,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "quota"))
	return s
}

// CheckAndIncrement evaluates the request and consumes one unit of quota
// when allowed.
func (s *Service) CheckAndIncrement(ctx context.Context, req *models.QuotaRequest, rc models.RequestContext) (*models.QuotaDecisionResponse, error) {
	// Validate and normalize request
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewInvalidRequestError("invalid quota request", err)
	}

	keys := identity.Derive(rc.Address, rc.UserAgent, req.DeviceFingerprint)
	suspicious := s.monitor.Observe(ctx, rc.Address, req.UserID)
	action := Action(req.Type)

	decision := s.engine.Evaluate(ctx, keys, action, suspicious, Consume)
	s.metrics.RecordDecision(ctx, string(action), decision.Allowed, suspicious)

	s.logger.Debug("quota decision",
		slog.String("action", string(action)),
		slog.Bool("allowed", decision.Allowed),
		slog.Int("used", decision.Used),
		slog.Int("remaining", decision.Remaining),
		slog.Bool("suspicious", suspicious),
	)

	return &models.QuotaDecisionResponse{
		Allowed:    decision.Allowed,
		Remaining:  decision.Remaining,
		ResetTime:  decision.ResetAt,
		Message:    s.withAdvisory(decisionMessage(decision), req.ClientVersion),
		Suspicious: suspicious,
	}, nil
}

// GetRemaining reports current usage without consuming quota. The abuse
// observation still runs: reads and writes feed the same identity window.
func (s *Service) GetRemaining(ctx context.Context, req *models.QuotaRequest, rc models.RequestContext) (*models.QuotaRemainingResponse, error) {
	// Validate and normalize request
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewInvalidRequestError("invalid quota request", err)
	}

	keys := identity.Derive(rc.Address, rc.UserAgent, req.DeviceFingerprint)
	suspicious := s.monitor.Observe(ctx, rc.Address, req.UserID)
	action := Action(req.Type)

	decision := s.engine.Evaluate(ctx, keys, action, suspicious, Peek)

	return &models.QuotaRemainingResponse{
		Remaining:  decision.Remaining,
		ResetTime:  decision.ResetAt,
		Message:    s.withAdvisory(remainingMessage(decision), req.ClientVersion),
		Suspicious: suspicious,
	}, nil
}

// decisionMessage renders the human-readable outcome of a consuming
// evaluation.
func decisionMessage(d Decision) string {
	if !d.Allowed {
		return "Daily limit reached. Try again after the reset."
	}
	return fmt.Sprintf("Allowed. %d of %d remaining today.", d.Remaining, d.Limit)
}

// remainingMessage renders the outcome of a read-only evaluation.
func remainingMessage(d Decision) string {
	return fmt.Sprintf("%d of %d remaining today.", d.Remaining, d.Limit)
}

// withAdvisory appends an update notice when the client reports a version
// older than the configured minimum. Unparseable versions are ignored; the
// advisory is informational and never blocks a request.
func (s *Service) withAdvisory(message, clientVersion string) string {
	if s.minClientVersion == nil || clientVersion == "" {
		return message
	}
	v, err := semver.NewVersion(clientVersion)
	if err != nil {
		s.logger.Debug("unparseable client version",
			slog.String("client_version", clientVersion),
			slog.String("error", err.Error()),
		)
		return message
	}
	if v.LessThan(s.minClientVersion) {
		return fmt.Sprintf("%s Extension version %s is outdated; please update to %s or newer.",
			message, clientVersion, s.minClientVersion)
	}
	return message
}
