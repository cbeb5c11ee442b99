// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Optional fields use omitempty to reduce response size
// - Rich error information with codes and details for debugging
// - Helper methods for easy response construction
// - RFC3339 timestamps for international compatibility
package models

import (
	"time"
)

// QuotaDecisionResponse answers a check_and_increment request.
//
// Response Strategy:
// - Allowed is the primary decision field for clients
// - Remaining lets the extension render the allowance without a second call
// - ResetTime tells the client exactly when quota returns (next UTC midnight)
// - Suspicious is surfaced so the extension can explain tightened limits
//
// Client Usage:
// - Gate the action on Allowed
// - Show Message to the user as-is; it already covers denial and advisories
type QuotaDecisionResponse struct {
	Allowed    bool      `json:"allowed"`              // Primary decision flag
	Remaining  int       `json:"remaining"`            // Units left after this decision
	ResetTime  time.Time `json:"resetTime"`            // When the daily window resets (UTC)
	Message    string    `json:"message,omitempty"`    // Human-readable outcome
	Suspicious bool      `json:"suspicious,omitempty"` // Tightened limits in effect
}

// QuotaRemainingResponse answers a get_remaining request. There is no
// Allowed field: nothing was consumed.
type QuotaRemainingResponse struct {
	Remaining  int       `json:"remaining"`
	ResetTime  time.Time `json:"resetTime"`
	Message    string    `json:"message,omitempty"`
	Suspicious bool      `json:"suspicious,omitempty"`
}

// ErrorResponse provides structured error information.
//
// Error Response Design:
// - Consistent structure across all error types
// - Machine-readable codes for client error handling
// - Human-readable messages for debugging
// - Request ID correlation for log lookup
type ErrorResponse struct {
	Error     string            `json:"error"`                // Error type (always "error")
	Message   string            `json:"message"`              // Human-readable error description
	Code      string            `json:"code,omitempty"`       // Machine-readable error code
	Details   map[string]string `json:"details,omitempty"`    // Field-specific error details
	Timestamp time.Time         `json:"timestamp"`            // Error occurrence time
	RequestID string            `json:"request_id,omitempty"` // Unique request identifier
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Metrics    map[string]interface{}     `json:"metrics,omitempty"`
}

type ComponentHealth struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Health Status Constants
//
// Health Monitoring:
// - Healthy: All systems operational
// - Degraded: Partial functionality (some features may be slow/limited)
// - Unhealthy: Major issues affecting core functionality
// - Unknown: Health status cannot be determined
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
	StatusUnknown   = "unknown"   // Status indeterminate
)

// Standard HTTP Error Codes
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - Maps to standard HTTP status codes
// - Machine-readable for client error handling
// - Extensible for service-specific errors
const (
	ErrorCodeBadRequest         = "BAD_REQUEST"         // 400: Invalid request format
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"     // 400: Invalid request data
	ErrorCodeNotFound           = "NOT_FOUND"           // 404: Resource doesn't exist
	ErrorCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"  // 405: Wrong HTTP method
	ErrorCodeRateLimited        = "RATE_LIMIT_EXCEEDED" // 429: Transport throttle engaged
	ErrorCodeInternalError      = "INTERNAL_ERROR"      // 500: Server-side error
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503: Service temporarily down
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
		Metrics:    make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddMetric(name string, value interface{}) {
	h.Metrics[name] = value
}
