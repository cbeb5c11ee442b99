// Package identity derives the redundant lookup keys that quota counters
// are stored under. Each request yields three keys computed from different
// subsets of the caller's network address, user-agent, and device
// fingerprint, so flipping any single signal still collides with prior
// usage on at least one key.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
)

const (
	// DigestLength is the number of hex characters kept from each SHA-256
	// digest. Keys are compacted for key-space economy, not secrecy.
	DigestLength = 16

	// primaryAgentLen and tertiaryAgentLen bound how much of the user-agent
	// participates in key material. The shorter tertiary prefix tolerates
	// minor user-agent drift (patch-level version bumps) while the longer
	// primary prefix keeps the most specific key distinct.
	primaryAgentLen  = 50
	tertiaryAgentLen = 30
)

// Keys holds the derived lookup keys in decreasing order of specificity.
// The order is stable: counters written under one generation of the
// derivation remain addressable by the next.
type Keys struct {
	Primary   string
	Secondary string
	Tertiary  string
}

// All returns the keys as an ordered slice for fold-style reductions.
func (k Keys) All() []string {
	return []string{k.Primary, k.Secondary, k.Tertiary}
}

// Derive computes the three redundant keys for a request context.
//
//	primary   = digest(address + agent[:50] + fingerprint)
//	secondary = digest(address + fingerprint)
//	tertiary  = digest(agent[:30] + fingerprint)
//
// Absent inputs are treated as empty strings; Derive never fails. The
// declared user id is deliberately not part of any key — rotating it must
// not produce a fresh counter.
func Derive(networkAddress, userAgent, deviceFingerprint string) Keys {
	return Keys{
		Primary:   Digest(networkAddress + truncate(userAgent, primaryAgentLen) + deviceFingerprint),
		Secondary: Digest(networkAddress + deviceFingerprint),
		Tertiary:  Digest(truncate(userAgent, tertiaryAgentLen) + deviceFingerprint),
	}
}

// Digest computes the SHA-256 hex digest of s truncated to DigestLength
// characters. Callers that need to reference identity material in logs
// should record the digest, never the raw value.
func Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:DigestLength]
}

// truncate returns at most the first n bytes of s.
func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
