package quota

import (
	"context"

	"github.com/rozmerigpt/user-limiter/internal/models"
)

// ServiceInterface defines the interface for quota service operations
type ServiceInterface interface {
	// CheckAndIncrement evaluates whether the action is allowed and, if so,
	// consumes one unit of quota
	CheckAndIncrement(ctx context.Context, req *models.QuotaRequest, rc models.RequestContext) (*models.QuotaDecisionResponse, error)

	// GetRemaining reports current usage without consuming quota
	GetRemaining(ctx context.Context, req *models.QuotaRequest, rc models.RequestContext) (*models.QuotaRemainingResponse, error)
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)
