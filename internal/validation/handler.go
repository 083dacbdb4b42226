package validation

import (
	"context"
	"errors"
	"time"

	"hize/membership/internal/archive"
	"hize/membership/internal/cache"
	"hize/membership/internal/framework"
	"hize/membership/internal/model"
	"hize/membership/internal/registry"
	"hize/membership/internal/store"
	"hize/membership/internal/upstream"
	"hize/membership/pkg/logger"
)

const (
	msgSessionExpired      = "Session expired"
	msgTimedOut            = "Validation timed out"
	msgUpstreamUnavailable = "Validation service unavailable"

	writeTimeout = 5 * time.Second
)

// Options Handler 参数
type Options struct {
	WorkerName string
	ResultTTL  time.Duration
	Now        func() time.Time
}

// Handler 处理单个校验任务，写回结果缓存和 job 记录
type Handler struct {
	cache     *cache.Cache
	registry  *registry.Registry
	validator upstream.Validator
	archive   archive.Recorder
	opts      Options
	logger    logger.Logger
}

// NewHandler 创建 Handler 实例
func NewHandler(c *cache.Cache, reg *registry.Registry, v upstream.Validator, rec archive.Recorder, opts Options, log logger.Logger) *Handler {
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if rec == nil {
		rec = archive.NopRecorder{}
	}
	return &Handler{
		cache:     c,
		registry:  reg,
		validator: v,
		archive:   rec,
		opts:      opts,
		logger:    log,
	}
}

// Handle 实现 framework.Handler
func (h *Handler) Handle(ctx context.Context, msg *framework.Message) framework.Outcome {
	job, err := model.DecodeJob(string(msg.Data))
	if err != nil {
		h.logger.Errorf(ctx, "[Validation] Undecodable message %s: %v", msg.ID, err)
		return framework.OutcomeBury
	}
	ctx = logger.WithMemberID(logger.WithJobID(ctx, job.JobID), job.MemberID)

	current, err := h.registry.Advance(ctx, job.JobID, model.StatusProcessing, func(j *model.ValidationJob) {
		j.Worker = h.opts.WorkerName
	})
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, registry.ErrExpired):
		h.logger.Warnf(ctx, "[Validation] Job record expired before pickup, dropping")
		return framework.OutcomeAck
	case errors.Is(err, registry.ErrInvalidTransition):
		h.logger.Infof(ctx, "[Validation] Job already finished, skipping redelivery")
		return framework.OutcomeAck
	case errors.Is(err, store.ErrUnavailable):
		h.logger.Warnf(ctx, "[Validation] Store unavailable, releasing: %v", err)
		return framework.OutcomeRelease
	default:
		h.logger.Errorf(ctx, "[Validation] Cannot mark job processing: %v", err)
		return framework.OutcomeBury
	}

	h.logger.Infof(ctx, "[Validation] Processing member")

	membership, err := h.validator.Validate(ctx, current.MemberID)

	// 上游调用可能耗尽处理超时，写回使用独立的超时
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err != nil {
		return h.fail(writeCtx, current, err)
	}
	return h.complete(writeCtx, current, membership)
}

func (h *Handler) complete(ctx context.Context, job *model.ValidationJob, m *upstream.Membership) framework.Outcome {
	completedAt := h.opts.Now().UTC()
	result := &model.ValidationResult{
		MemberID:                   job.MemberID,
		IsValid:                    m.IsValid,
		MembershipStatus:           m.MembershipStatus,
		NameInitials:               m.NameInitials,
		MemberGrade:                m.MemberGrade,
		StandardsAssociationMember: m.StandardsAssociationMember,
		SocietyMemberships:         m.SocietyMemberships,
		JobID:                      job.JobID,
		CompletedAt:                &completedAt,
	}

	if err := h.cache.PutResult(ctx, result, h.opts.ResultTTL); err != nil {
		h.logger.Errorf(ctx, "[Validation] Cache result failed: %v", err)
		if errors.Is(err, store.ErrUnavailable) {
			return framework.OutcomeRelease
		}
		return framework.OutcomeBury
	}

	// 结果已缓存，job 记录写失败时轮询仍可经索引找回
	finished, err := h.registry.Advance(ctx, job.JobID, model.StatusCompleted, func(j *model.ValidationJob) {
		j.CompletedAt = &completedAt
	})
	if err != nil {
		h.logger.Warnf(ctx, "[Validation] Mark job completed failed: %v", err)
		finished = job.Clone()
		finished.Status = model.StatusCompleted
		finished.CompletedAt = &completedAt
	}

	h.releaseMarker(ctx, job)
	h.record(ctx, finished, result)

	h.logger.Infof(ctx, "[Validation] Job completed: valid=%t status=%s", result.IsValid, result.MembershipStatus)
	return framework.OutcomeAck
}

func (h *Handler) fail(ctx context.Context, job *model.ValidationJob, cause error) framework.Outcome {
	message, sessionExpired := failureMessage(cause)
	completedAt := h.opts.Now().UTC()

	h.logger.Warnf(ctx, "[Validation] Job failed: %v", cause)

	finished, err := h.registry.Advance(ctx, job.JobID, model.StatusFailed, func(j *model.ValidationJob) {
		j.Error = message
		j.SessionExpired = sessionExpired
		j.CompletedAt = &completedAt
	})
	if err != nil {
		h.logger.Errorf(ctx, "[Validation] Mark job as failed: %v", err)
		if errors.Is(err, store.ErrUnavailable) {
			return framework.OutcomeRelease
		}
		return framework.OutcomeAck
	}

	// 会话失效时保留在途标记，标记过期前不再重复打到上游
	if sessionExpired {
		h.logger.Warnf(ctx, "[Validation] Upstream session expired, cookie needs refresh")
	} else {
		h.releaseMarker(ctx, job)
	}
	h.record(ctx, finished, nil)
	return framework.OutcomeAck
}

func (h *Handler) releaseMarker(ctx context.Context, job *model.ValidationJob) {
	released, err := h.cache.ReleaseMarker(ctx, job.MemberID, job.JobID)
	if err != nil {
		h.logger.Warnf(ctx, "[Validation] Release marker failed: %v", err)
		return
	}
	if !released {
		h.logger.Debugf(ctx, "[Validation] Marker already expired or owned by another job")
	}
}

func (h *Handler) record(ctx context.Context, job *model.ValidationJob, result *model.ValidationResult) {
	if err := h.archive.Record(ctx, job, result); err != nil {
		h.logger.Warnf(ctx, "[Validation] Archive failed: %v", err)
	}
}

// failureMessage 对外展示的失败原因
func failureMessage(err error) (string, bool) {
	var rejected *upstream.RejectedError
	switch {
	case errors.Is(err, upstream.ErrSessionExpired):
		return msgSessionExpired, true
	case errors.As(err, &rejected):
		return rejected.Message, false
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimedOut, false
	default:
		return msgUpstreamUnavailable, false
	}
}
