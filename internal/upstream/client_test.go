package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL + "/", APIKey: "secret", Timeout: time.Second})
}

func TestValidateSuccess(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/validate-member", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req validateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "12345", req.MemberID)

		_, _ = w.Write([]byte(`{"isValid":true,"membershipStatus":"Active","nameInitials":"J.D.","memberGrade":"Senior Member","societyMemberships":"Computer Society","memberId":"12345"}`))
	})

	m, err := c.Validate(context.Background(), "12345")
	require.NoError(t, err)
	assert.True(t, m.IsValid)
	assert.Equal(t, "Active", m.MembershipStatus)
	assert.Equal(t, "Senior Member", m.MemberGrade)
	assert.Equal(t, "Computer Society", m.SocietyMemberships)
}

func TestValidateNullFields(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"isValid":null,"membershipStatus":null,"nameInitials":null}`))
	})

	m, err := c.Validate(context.Background(), "9")
	require.NoError(t, err)
	assert.False(t, m.IsValid)
	assert.Equal(t, "Unknown", m.MembershipStatus)
	assert.Equal(t, "9", m.MemberID)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		expired   bool
		rejection string
	}{
		{name: "session expired", status: http.StatusServiceUnavailable, body: `{"isValid":false,"error":"Session expired: Cookie needs refresh"}`, expired: true},
		{name: "cookie missing", status: http.StatusServiceUnavailable, body: `{"error":"Cookie not available"}`, expired: true},
		{name: "member rejected", status: http.StatusOK, body: `{"isValid":false,"error":"Member not found","membershipStatus":"Unknown"}`, rejection: "Member not found"},
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"Validation failed: boom"}`, rejection: "Validation failed: boom"},
		{name: "gateway html", status: http.StatusBadGateway, body: `<html>bad gateway</html>`},
		{name: "garbage", status: http.StatusOK, body: `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Validate(context.Background(), "1")
			require.Error(t, err)
			assert.Equal(t, tt.expired, errors.Is(err, ErrSessionExpired))

			var rejected *RejectedError
			if tt.rejection != "" {
				require.True(t, errors.As(err, &rejected))
				assert.Equal(t, tt.rejection, rejected.Message)
			} else {
				assert.False(t, errors.As(err, &rejected))
			}
		})
	}
}

func TestValidatePacing(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"isValid":true,"membershipStatus":"Active"}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, RequestInterval: 50 * time.Millisecond})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Validate(context.Background(), "1")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestValidateContextCancelled(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Validate(ctx, "1")
	assert.Error(t, err)
}
