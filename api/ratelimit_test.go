package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultKeyFunc(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		xff      string
		remote   string
		trustXFF bool
		want     string
	}{
		{"user header wins", "alice", "10.0.0.9", "1.2.3.4:5555", true, "alice"},
		{"xff when trusted", "", "10.0.0.9, 172.16.0.1", "1.2.3.4:5555", true, "10.0.0.9"},
		{"xff ignored when untrusted", "", "10.0.0.9", "1.2.3.4:5555", false, "1.2.3.4"},
		{"remote addr without port", "", "", "1.2.3.4", false, "1.2.3.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.header != "" {
				r.Header.Set(UserHeader, tt.header)
			}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, DefaultKeyFunc(UserHeader, tt.trustXFF)(r))
		})
	}
}

func TestRateLimit_PerMember(t *testing.T) {
	// GIVEN: A burst of 2 with a negligible refill rate
	l := NewLimiters(0.001, 2)
	h := RateLimit(l, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(user string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set(UserHeader, user)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	// WHEN/THEN: Alice's third request is rejected, Bob is unaffected
	assert.Equal(t, http.StatusNoContent, call("alice").Code)
	assert.Equal(t, http.StatusNoContent, call("alice").Code)
	rec := call("alice")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusNoContent, call("bob").Code)
	assert.Equal(t, 2, l.Len())
}

func TestLimiters_DisabledAndCleanup(t *testing.T) {
	off := NewLimiters(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, off.Allow("alice"))
	}
	assert.Zero(t, off.Len())

	l := NewLimiters(1, 1)
	l.idleTTL = -time.Second
	l.Allow("alice")
	l.Cleanup()
	assert.Zero(t, l.Len())
}
