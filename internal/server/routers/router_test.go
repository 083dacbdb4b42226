package routers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hize/membership/internal/cache"
	"hize/membership/internal/coordinator"
	"hize/membership/internal/model"
	"hize/membership/internal/queue"
	"hize/membership/internal/registry"
	"hize/membership/internal/server/handlers/membership"
	"hize/membership/internal/server/middlewares"
	"hize/membership/internal/store/memstore"
	"hize/membership/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	engine *gin.Engine
	st     *memstore.Store
	cache  *cache.Cache
	reg    *registry.Registry
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	log := logger.NewNop()
	st := memstore.New()
	c := cache.New(st, log)
	reg := registry.New(st, 10*time.Minute)
	q := queue.NewListQueue(st, "ieee_validation_queue")
	coord := coordinator.New(c, reg, q, st, coordinator.Options{}, log)

	return &testServer{
		engine: SetupRoutes(membership.NewHandler(coord), opts, log),
		st:     st,
		cache:  c,
		reg:    reg,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	out := map[string]interface{}{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func TestCheckAndPoll(t *testing.T) {
	s := newTestServer(t, Options{})

	code, body := s.do(t, http.MethodPost, "/api/check", `{"memberId":" 12345 "}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "processing", body["status"])
	assert.Equal(t, "12345", body["memberId"])
	jobID, ok := body["jobId"].(string)
	require.True(t, ok)

	code, body = s.do(t, http.MethodGet, "/api/status/"+jobID, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "processing", body["status"])
	assert.Equal(t, jobID, body["jobId"])

	ctx := context.Background()
	require.NoError(t, s.cache.PutResult(ctx, &model.ValidationResult{
		MemberID: "12345", IsValid: true, MembershipStatus: "Active", JobID: jobID,
	}, time.Hour))
	_, err := s.reg.Advance(ctx, jobID, model.StatusCompleted, nil)
	require.NoError(t, err)

	code, body = s.do(t, http.MethodGet, "/api/ieee-validate/status?jobId="+jobID, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", body["status"])
	result := body["result"].(map[string]interface{})
	assert.Equal(t, true, result["isValid"])
	assert.Equal(t, "Active", result["membershipStatus"])

	// 缓存命中时 jobId 为 null
	code, body = s.do(t, http.MethodPost, "/api/ieee-validate/check", `{"memberId":"12345"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", body["status"])
	v, present := body["jobId"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestCheckValidation(t *testing.T) {
	s := newTestServer(t, Options{})

	tests := []struct {
		name string
		body string
	}{
		{name: "missing", body: `{}`},
		{name: "empty", body: `{"memberId":""}`},
		{name: "blank", body: `{"memberId":"   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(t, http.MethodPost, "/api/check", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "memberId is required", body["error"])
		})
	}

	code, _ := s.do(t, http.MethodPost, "/api/check", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCheckAcceptsPaddedAndLongIDs(t *testing.T) {
	s := newTestServer(t, Options{})

	longID := strings.Repeat("9", 80)
	tests := []struct {
		body string
		want string
	}{
		{body: `{"memberId":"  ` + longID + `  "}`, want: longID},
		{body: `{"memberId":"\t42\n"}`, want: "42"},
	}
	for _, tt := range tests {
		code, body := s.do(t, http.MethodPost, "/api/check", tt.body)
		require.Equal(t, http.StatusOK, code, tt.body)
		assert.Equal(t, "processing", body["status"])
		assert.Equal(t, tt.want, body["memberId"])
	}
}

func TestStatusErrors(t *testing.T) {
	s := newTestServer(t, Options{})

	code, body := s.do(t, http.MethodGet, "/api/status/not-a-real-id", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Job not found", body["error"])
	assert.Equal(t, "not_found", body["status"])

	code, body = s.do(t, http.MethodGet, "/api/ieee-validate/status", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "jobId is required", body["error"])
}

func TestServiceUnavailable(t *testing.T) {
	s := newTestServer(t, Options{})
	s.st.SetAvailable(false)

	code, body := s.do(t, http.MethodPost, "/api/check", `{"memberId":"1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "Service temporarily unavailable", body["error"])
	assert.NotEmpty(t, body["message"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Options{})

	code, body := s.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "connected", body["redisStore"])
	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	assert.NoError(t, err)

	s.st.SetAvailable(false)
	code, body = s.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "disconnected", body["redisStore"])
}

func TestRateLimit(t *testing.T) {
	// 固定在窗口起点，避免跨窗口
	windowStart := time.Now().Truncate(time.Hour)
	limiter := middlewares.NewWindowLimiter(memstore.New(), 2, time.Hour,
		middlewares.WithLimiterClock(func() time.Time { return windowStart }))
	s := newTestServer(t, Options{Limiter: limiter})

	for i := 0; i < 2; i++ {
		code, _ := s.do(t, http.MethodGet, "/api/health", "")
		assert.Equal(t, http.StatusOK, code)
	}
	code, body := s.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "Too many requests, please try again later", body["error"])
}

func TestNoRoute(t *testing.T) {
	s := newTestServer(t, Options{})

	code, body := s.do(t, http.MethodGet, "/api/unknown", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Not found", body["error"])
}
