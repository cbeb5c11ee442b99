// Package models - API request types and input validation.
// This file defines the incoming quota API structures with validation.
//
// Validation Philosophy:
// - Fail fast with clear error messages for invalid input
// - Normalize input data for consistent processing (trimmed strings, defaults)
// - Validation rejects only client mistakes; everything else is policy
// - Separate validation from normalization for clear error reporting
package models

import (
	"errors"
	"fmt"
	"strings"
)

// Quota actions accepted on the wire.
const (
	ActionCheckAndIncrement = "check_and_increment"
	ActionGetRemaining      = "get_remaining"
)

// Quota types accepted on the wire.
const (
	QuotaTypeComments = "comments"
	QuotaTypePosts    = "posts"
)

// QuotaRequest represents a quota evaluation request from the browser
// extension.
//
// Core API Design:
// - UserID is a client-declared identifier: required, but never trusted as
//   identity on its own (rotating it feeds the abuse heuristic instead)
// - DeviceFingerprint is optional extra key material computed client-side
// - Type defaults to comments so the common case stays a two-field body
// - ClientVersion is advisory only; an outdated extension is warned, not
//   rejected
//
// Security Notes:
// - No server-side authentication; identity comes from transport signals
// - All fields are validated before processing
type QuotaRequest struct {
	UserID            string `json:"userId" validate:"required"` // Client-declared user identifier
	Action            string `json:"action" validate:"required"` // check_and_increment or get_remaining
	DeviceFingerprint string `json:"deviceFingerprint,omitempty"`
	Type              string `json:"type,omitempty"`          // comments (default) or posts
	ClientVersion     string `json:"clientVersion,omitempty"` // Extension version (advisory)
}

// Validate checks the request after normalization. Unknown actions and a
// missing userId are rejected before any state is touched.
func (r *QuotaRequest) Validate() error {
	if r.UserID == "" {
		return errors.New("userId is required")
	}

	switch r.Action {
	case ActionCheckAndIncrement, ActionGetRemaining:
	case "":
		return errors.New("action is required")
	default:
		return fmt.Errorf("invalid action: %s", r.Action)
	}

	switch r.Type {
	case QuotaTypeComments, QuotaTypePosts:
	default:
		return fmt.Errorf("invalid type: %s", r.Type)
	}

	return nil
}

// Normalize trims whitespace and applies the default quota type.
func (r *QuotaRequest) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
	r.Action = strings.TrimSpace(strings.ToLower(r.Action))
	r.DeviceFingerprint = strings.TrimSpace(r.DeviceFingerprint)
	r.Type = strings.TrimSpace(strings.ToLower(r.Type))
	r.ClientVersion = strings.TrimSpace(r.ClientVersion)

	if r.Type == "" {
		r.Type = QuotaTypeComments
	}
}

// RequestContext carries the transport-level signals that identity keys are
// derived from. It is built by the HTTP layer, never from the JSON body, so
// clients cannot spoof the address or agent by posting different values.
type RequestContext struct {
	Address        string // Client network address (proxy-aware)
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	Referer        string
}
