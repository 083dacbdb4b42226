package coordinator

import (
	"context"
	"errors"
	"time"

	"hize/membership/internal/cache"
	"hize/membership/internal/model"
	"hize/membership/internal/registry"
	"hize/membership/pkg/errorx"
	"hize/membership/pkg/logger"
)

const (
	// maxMarkerAttempts 在途标记在 SETNX 与读取之间过期时的重试次数
	maxMarkerAttempts = 3

	msgMemberIDRequired = "memberId is required"
	msgJobIDRequired    = "jobId is required"
	msgJobNotFound      = "Job not found"
	msgStoreDown        = "Redis connection failed"
	msgQueueDown        = "Queue system is down"
	msgValidationFailed = "Validation failed"

	StoreConnected    = "connected"
	StoreDisconnected = "disconnected"
)

// Producer 入队能力，Coordinator 只生产不消费
type Producer interface {
	Push(ctx context.Context, job *model.ValidationJob) error
}

// Pinger 存储连通性检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options Coordinator 参数
type Options struct {
	MarkerTTL     time.Duration
	HealthTimeout time.Duration
	Now           func() time.Time
}

// Coordinator 提交 / 轮询协议
type Coordinator struct {
	cache    *cache.Cache
	registry *registry.Registry
	queue    Producer
	pinger   Pinger
	opts     Options
	logger   logger.Logger
}

// SubmitResponse POST /api/check 响应
// jobId 缓存命中时为 null
type SubmitResponse struct {
	JobID    *string                 `json:"jobId"`
	Status   model.JobStatus         `json:"status"`
	MemberID string                  `json:"memberId,omitempty"`
	Result   *model.ValidationResult `json:"result,omitempty"`
}

// StatusResponse GET /api/status/:jobId 响应
type StatusResponse struct {
	JobID    string                  `json:"jobId"`
	Status   model.JobStatus         `json:"status"`
	MemberID string                  `json:"memberId,omitempty"`
	Result   *model.ValidationResult `json:"result,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// HealthResponse GET /api/health 响应
type HealthResponse struct {
	Status     string `json:"status"`
	RedisStore string `json:"redisStore"`
	Timestamp  string `json:"timestamp"`
}

// New 创建 Coordinator 实例
func New(c *cache.Cache, reg *registry.Registry, q Producer, pinger Pinger, opts Options, log logger.Logger) *Coordinator {
	if opts.MarkerTTL <= 0 {
		opts.MarkerTTL = 5 * time.Minute
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		cache:    c,
		registry: reg,
		queue:    q,
		pinger:   pinger,
		opts:     opts,
		logger:   log,
	}
}

// Submit 提交会员校验
// 顺序：结果缓存 → 在途标记 → 新建任务
func (c *Coordinator) Submit(ctx context.Context, rawMemberID string) (*SubmitResponse, error) {
	memberID := model.NormalizeMemberID(rawMemberID)
	if memberID == "" {
		return nil, errorx.New(errorx.InvalidInput, msgMemberIDRequired)
	}
	ctx = logger.WithMemberID(ctx, memberID)

	if resp, ok := c.cached(ctx, memberID); ok {
		return resp, nil
	}

	for attempt := 0; attempt < maxMarkerAttempts; attempt++ {
		job := model.NewValidationJob(memberID, c.opts.Now())

		acquired, owner, err := c.cache.AcquireMarker(ctx, memberID, job.JobID, c.opts.MarkerTTL)
		if err != nil {
			c.logger.Errorf(ctx, "[Coordinator] Acquire marker failed: %v", err)
			return nil, errorx.Wrap(errorx.ServiceUnavailable, err, msgStoreDown)
		}
		if !acquired {
			if owner == "" {
				continue
			}
			c.logger.Infof(ctx, "[Coordinator] Job already in flight: %s", owner)
			return processing(owner, memberID), nil
		}

		// 持有标记期间结果可能刚写入
		if resp, ok := c.cached(ctx, memberID); ok {
			c.release(ctx, memberID, job.JobID)
			return resp, nil
		}

		if err := c.enqueue(ctx, job); err != nil {
			c.release(ctx, memberID, job.JobID)
			return nil, err
		}
		return processing(job.JobID, memberID), nil
	}

	c.logger.Warnf(ctx, "[Coordinator] Marker kept vanishing after %d attempts", maxMarkerAttempts)
	return nil, errorx.New(errorx.ServiceUnavailable, msgStoreDown)
}

// cached 缓存读取失败按未命中处理
func (c *Coordinator) cached(ctx context.Context, memberID string) (*SubmitResponse, bool) {
	result, found, err := c.cache.GetResult(ctx, memberID)
	if err != nil {
		c.logger.Warnf(ctx, "[Coordinator] Cache check failed: %v", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	c.logger.Infof(ctx, "[Coordinator] Cache hit")
	return &SubmitResponse{Status: model.StatusCompleted, Result: result}, true
}

// enqueue 先写 job 记录再入队，Worker 的终态写入不会被覆盖
func (c *Coordinator) enqueue(ctx context.Context, job *model.ValidationJob) error {
	ctx = logger.WithJobID(ctx, job.JobID)

	record := job.Clone()
	record.Status = model.StatusProcessing
	if err := c.registry.Put(ctx, record, c.registry.TTL()); err != nil {
		c.logger.Errorf(ctx, "[Coordinator] Write job record failed: %v", err)
		return errorx.Wrap(errorx.ServiceUnavailable, err, msgStoreDown)
	}

	if err := c.queue.Push(ctx, job); err != nil {
		c.logger.Errorf(ctx, "[Coordinator] Push to queue failed: %v", err)
		c.abandon(ctx, job.JobID)
		return errorx.Wrap(errorx.ServiceUnavailable, err, msgQueueDown)
	}

	c.logger.Infof(ctx, "[Coordinator] Job queued")
	return nil
}

// abandon 入队失败的 job 记录标记为 failed，尽力而为
// 通过在途标记拿到该 jobId 的请求方轮询时不会一直看到 processing
func (c *Coordinator) abandon(ctx context.Context, jobID string) {
	now := c.opts.Now().UTC()
	_, err := c.registry.Advance(ctx, jobID, model.StatusFailed, func(j *model.ValidationJob) {
		j.Error = msgQueueDown
		j.CompletedAt = &now
	})
	if err != nil {
		c.logger.Warnf(ctx, "[Coordinator] Mark unqueued job failed: %v", err)
	}
}

func (c *Coordinator) release(ctx context.Context, memberID, jobID string) {
	if _, err := c.cache.ReleaseMarker(ctx, memberID, jobID); err != nil {
		c.logger.Warnf(ctx, "[Coordinator] Release marker failed: %v", err)
	}
}

func processing(jobID, memberID string) *SubmitResponse {
	return &SubmitResponse{
		JobID:    &jobID,
		Status:   model.StatusProcessing,
		MemberID: memberID,
	}
}

// PollStatus 查询任务状态，只读
func (c *Coordinator) PollStatus(ctx context.Context, jobID string) (*StatusResponse, error) {
	if jobID == "" {
		return nil, errorx.New(errorx.InvalidInput, msgJobIDRequired)
	}
	ctx = logger.WithJobID(ctx, jobID)

	job, found, err := c.registry.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, model.ErrMalformed) {
			c.logger.Errorf(ctx, "[Coordinator] Corrupt job record: %v", err)
			return nil, errorx.Wrap(errorx.Internal, err, "corrupt job record")
		}
		c.logger.Errorf(ctx, "[Coordinator] Read job record failed: %v", err)
		return nil, errorx.Wrap(errorx.ServiceUnavailable, err, msgStoreDown)
	}

	if !found {
		return c.resolveExpired(ctx, jobID)
	}

	switch job.Status {
	case model.StatusCompleted:
		result, ok, err := c.cache.GetResult(ctx, job.MemberID)
		if err != nil {
			return nil, errorx.Wrap(errorx.ServiceUnavailable, err, msgStoreDown)
		}
		if ok {
			return &StatusResponse{JobID: jobID, Status: model.StatusCompleted, Result: result}, nil
		}
		c.logger.Warnf(ctx, "[Coordinator] Job completed but result missing, reporting processing")
		return &StatusResponse{JobID: jobID, Status: model.StatusProcessing, MemberID: job.MemberID}, nil

	case model.StatusFailed:
		msg := job.Error
		if msg == "" {
			msg = msgValidationFailed
		}
		return &StatusResponse{JobID: jobID, Status: model.StatusFailed, Error: msg}, nil

	default:
		return &StatusResponse{JobID: jobID, Status: model.StatusProcessing, MemberID: job.MemberID}, nil
	}
}

// resolveExpired job 记录已过期时从结果缓存中找回
func (c *Coordinator) resolveExpired(ctx context.Context, jobID string) (*StatusResponse, error) {
	result, found, err := c.cache.FindResultByJob(ctx, jobID)
	if err != nil {
		c.logger.Errorf(ctx, "[Coordinator] Lookup result by job failed: %v", err)
		return nil, errorx.Wrap(errorx.ServiceUnavailable, err, msgStoreDown)
	}
	if !found {
		return nil, errorx.New(errorx.NotFound, msgJobNotFound)
	}
	return &StatusResponse{JobID: jobID, Status: model.StatusCompleted, Result: result}, nil
}

// Health 存储连通性，永不失败
func (c *Coordinator) Health(ctx context.Context) *HealthResponse {
	pingCtx, cancel := context.WithTimeout(ctx, c.opts.HealthTimeout)
	defer cancel()

	state := StoreConnected
	if err := c.pinger.Ping(pingCtx); err != nil {
		c.logger.Warnf(ctx, "[Coordinator] Health ping failed: %v", err)
		state = StoreDisconnected
	}

	return &HealthResponse{
		Status:     "ok",
		RedisStore: state,
		Timestamp:  c.opts.Now().UTC().Format(time.RFC3339),
	}
}
