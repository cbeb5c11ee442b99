package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rozmerigpt/user-limiter/internal/models"
)

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	var insideID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		insideID = GetRequestID(r)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()
	requestIDMiddleware(handler).ServeHTTP(rr, req)

	require.NotEmpty(t, insideID, "handler should see a request id")
	assert.Equal(t, insideID, rr.Header().Get("X-Request-ID"), "id should be echoed in the response")

	_, err := uuid.Parse(insideID)
	assert.NoError(t, err, "generated id should be a UUID")
}

func TestRequestIDMiddleware_HonorsInboundID(t *testing.T) {
	var insideID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		insideID = GetRequestID(r)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", "client-supplied-id")
	rr := httptest.NewRecorder()
	requestIDMiddleware(handler).ServeHTTP(rr, req)

	assert.Equal(t, "client-supplied-id", insideID)
	assert.Equal(t, "client-supplied-id", rr.Header().Get("X-Request-ID"))
}

func TestGetRequestID_WithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	assert.Equal(t, "", GetRequestID(req))
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()
	securityHeadersMiddleware(handler).ServeHTTP(rr, req)

	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rr.Header().Get("Referrer-Policy"))
}

func TestRequestContext_FromTransportSignals(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quota", nil)
	req.RemoteAddr = "192.0.2.10:51544"
	req.Header.Set("User-Agent", "quota-extension/2.1.0")
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.Header.Set("Referer", "https://example.com/feed")

	rc := requestContext(req)

	want := models.RequestContext{
		Address:        "192.0.2.10",
		UserAgent:      "quota-extension/2.1.0",
		AcceptLanguage: "de-DE,de;q=0.9",
		AcceptEncoding: "gzip, br",
		Referer:        "https://example.com/feed",
	}
	assert.Equal(t, want, rc)
}

func TestRequestContext_PrefersProxyHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quota", nil)
	req.RemoteAddr = "10.0.0.1:34412" // the load balancer
	req.Header.Set("X-Forwarded-For", "198.51.100.23, 10.0.0.1")

	rc := requestContext(req)
	assert.Equal(t, "198.51.100.23", rc.Address)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expected   string
	}{
		{
			name:       "remote addr with port",
			remoteAddr: "192.0.2.1:38522",
			expected:   "192.0.2.1",
		},
		{
			name:       "single forwarded for",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5"},
			expected:   "203.0.113.5",
		},
		{
			name:       "forwarded chain uses first hop",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5, 70.41.3.18, 10.0.0.1"},
			expected:   "203.0.113.5",
		},
		{
			name:       "real ip header",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Real-IP": "198.51.100.9"},
			expected:   "198.51.100.9",
		},
		{
			name:       "forwarded for wins over real ip",
			remoteAddr: "10.0.0.1:1234",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.5",
				"X-Real-IP":       "198.51.100.9",
			},
			expected: "203.0.113.5",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::42]:51544",
			expected:   "2001:db8::42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, getClientIP(req))
		})
	}
}
