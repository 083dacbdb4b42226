package validation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hize/membership/internal/cache"
	"hize/membership/internal/framework"
	"hize/membership/internal/model"
	"hize/membership/internal/registry"
	"hize/membership/internal/store/memstore"
	"hize/membership/internal/upstream"
	"hize/membership/internal/upstream/mocks"
	"hize/membership/pkg/logger"
)

type memRecorder struct {
	mu      sync.Mutex
	jobs    []*model.ValidationJob
	results []*model.ValidationResult
}

func (r *memRecorder) Record(_ context.Context, job *model.ValidationJob, result *model.ValidationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	r.results = append(r.results, result)
	return nil
}

func (r *memRecorder) Close() error { return nil }

type fixture struct {
	handler   *Handler
	st        *memstore.Store
	cache     *cache.Cache
	registry  *registry.Registry
	validator *mocks.MockValidator
	recorder  *memRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := logger.NewNop()

	st := memstore.New()
	c := cache.New(st, log)
	reg := registry.New(st, 10*time.Minute)
	v := mocks.NewMockValidator(ctrl)
	rec := &memRecorder{}

	h := NewHandler(c, reg, v, rec, Options{WorkerName: "ieee-validation-0", ResultTTL: 24 * time.Hour}, log)
	return &fixture{handler: h, st: st, cache: c, registry: reg, validator: v, recorder: rec}
}

// submit 按 Coordinator 的顺序写入标记、job 记录，返回队列消息
func (f *fixture) submit(t *testing.T, memberID string) (*model.ValidationJob, *framework.Message) {
	t.Helper()
	ctx := context.Background()
	job := model.NewValidationJob(memberID, time.Now())

	acquired, _, err := f.cache.AcquireMarker(ctx, memberID, job.JobID, 5*time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	record := job.Clone()
	record.Status = model.StatusProcessing
	require.NoError(t, f.registry.Put(ctx, record, f.registry.TTL()))

	raw, err := model.EncodeJob(job)
	require.NoError(t, err)
	return job, &framework.Message{ID: job.JobID, Queue: "q", Data: []byte(raw)}
}

func (f *fixture) job(t *testing.T, jobID string) *model.ValidationJob {
	t.Helper()
	job, found, err := f.registry.Get(context.Background(), jobID)
	require.NoError(t, err)
	require.True(t, found)
	return job
}

func (f *fixture) markerHeld(t *testing.T, memberID string) bool {
	t.Helper()
	_, found, err := f.cache.MarkerOwner(context.Background(), memberID)
	require.NoError(t, err)
	return found
}

func TestHandleSuccess(t *testing.T) {
	f := newFixture(t)
	job, msg := f.submit(t, "12345")

	f.validator.EXPECT().Validate(gomock.Any(), "12345").Return(&upstream.Membership{
		MemberID:         "12345",
		IsValid:          true,
		MembershipStatus: "Active",
		NameInitials:     "J.D.",
		MemberGrade:      "Student Member",
	}, nil)

	outcome := f.handler.Handle(context.Background(), msg)
	assert.Equal(t, framework.OutcomeAck, outcome)

	result, found, err := f.cache.GetResult(context.Background(), "12345")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, result.IsValid)
	assert.Equal(t, job.JobID, result.JobID)
	assert.NotNil(t, result.CompletedAt)

	stored := f.job(t, job.JobID)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.Equal(t, "ieee-validation-0", stored.Worker)
	assert.NotNil(t, stored.CompletedAt)

	assert.False(t, f.markerHeld(t, "12345"))

	require.Len(t, f.recorder.jobs, 1)
	assert.Equal(t, model.StatusCompleted, f.recorder.jobs[0].Status)
	assert.NotNil(t, f.recorder.results[0])
}

func TestHandleRejected(t *testing.T) {
	f := newFixture(t)
	job, msg := f.submit(t, "999")

	f.validator.EXPECT().Validate(gomock.Any(), "999").
		Return(nil, &upstream.RejectedError{Message: "Member not found"})

	outcome := f.handler.Handle(context.Background(), msg)
	assert.Equal(t, framework.OutcomeAck, outcome)

	stored := f.job(t, job.JobID)
	assert.Equal(t, model.StatusFailed, stored.Status)
	assert.Equal(t, "Member not found", stored.Error)
	assert.False(t, stored.SessionExpired)

	// 失败不写缓存
	_, found, err := f.cache.GetResult(context.Background(), "999")
	require.NoError(t, err)
	assert.False(t, found)

	assert.False(t, f.markerHeld(t, "999"))
	require.Len(t, f.recorder.jobs, 1)
	assert.Nil(t, f.recorder.results[0])
}

func TestHandleSessionExpired(t *testing.T) {
	f := newFixture(t)
	job, msg := f.submit(t, "555")

	f.validator.EXPECT().Validate(gomock.Any(), "555").
		Return(nil, fmt.Errorf("%w: Cookie not available", upstream.ErrSessionExpired))

	outcome := f.handler.Handle(context.Background(), msg)
	assert.Equal(t, framework.OutcomeAck, outcome)

	stored := f.job(t, job.JobID)
	assert.Equal(t, model.StatusFailed, stored.Status)
	assert.Equal(t, "Session expired", stored.Error)
	assert.True(t, stored.SessionExpired)

	assert.True(t, f.markerHeld(t, "555"))
}

func TestHandleTransportError(t *testing.T) {
	f := newFixture(t)
	job, msg := f.submit(t, "1")

	f.validator.EXPECT().Validate(gomock.Any(), "1").Return(nil, fmt.Errorf("dial tcp: connection refused"))

	assert.Equal(t, framework.OutcomeAck, f.handler.Handle(context.Background(), msg))
	assert.Equal(t, "Validation service unavailable", f.job(t, job.JobID).Error)
}

func TestHandleUndecodable(t *testing.T) {
	f := newFixture(t)

	outcome := f.handler.Handle(context.Background(), &framework.Message{ID: "x", Data: []byte("garbage")})
	assert.Equal(t, framework.OutcomeBury, outcome)
}

func TestHandleRedeliveryAfterTerminal(t *testing.T) {
	f := newFixture(t)
	job, msg := f.submit(t, "77")

	_, err := f.registry.Advance(context.Background(), job.JobID, model.StatusFailed, func(j *model.ValidationJob) {
		j.Error = "Member not found"
	})
	require.NoError(t, err)

	assert.Equal(t, framework.OutcomeAck, f.handler.Handle(context.Background(), msg))
	assert.Equal(t, model.StatusFailed, f.job(t, job.JobID).Status)
}

func TestHandleMissingJobRecord(t *testing.T) {
	f := newFixture(t)
	job := model.NewValidationJob("88", time.Now())
	raw, err := model.EncodeJob(job)
	require.NoError(t, err)

	outcome := f.handler.Handle(context.Background(), &framework.Message{ID: job.JobID, Data: []byte(raw)})
	assert.Equal(t, framework.OutcomeAck, outcome)
}

func TestHandleStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	_, msg := f.submit(t, "66")
	f.st.SetAvailable(false)

	assert.Equal(t, framework.OutcomeRelease, f.handler.Handle(context.Background(), msg))
}

func TestFailureMessage(t *testing.T) {
	msg, expired := failureMessage(context.DeadlineExceeded)
	assert.Equal(t, "Validation timed out", msg)
	assert.False(t, expired)

	msg, expired = failureMessage(upstream.ErrSessionExpired)
	assert.Equal(t, "Session expired", msg)
	assert.True(t, expired)
}
