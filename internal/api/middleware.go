package api

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rozmerigpt/user-limiter/internal/models"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// requestIDMiddleware assigns every request a correlation id. An inbound
// X-Request-ID is honored so extension retries stay correlated across
// attempts; otherwise a fresh UUID is generated. The id is echoed back in
// the response header and attached to error bodies.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the correlation id assigned by requestIDMiddleware,
// or an empty string when the middleware did not run.
func GetRequestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

// securityHeadersMiddleware sets conservative browser-facing headers. The
// API serves JSON to an extension; nothing here should ever be framed or
// content-sniffed.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// requestContext collects the transport signals that feed identity
// derivation. Everything comes from headers and the connection; the JSON
// body never contributes, so a client cannot post its way into another
// caller's identity.
func requestContext(r *http.Request) models.RequestContext {
	return models.RequestContext{
		Address:        getClientIP(r),
		UserAgent:      r.Header.Get("User-Agent"),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
		Referer:        r.Header.Get("Referer"),
	}
}

// getClientIP extracts the client IP from the request, checking proxy headers
// before falling back to the connection's remote address. The port is
// stripped so the address stays stable across connections.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
