package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hize/membership/internal/model"
	"hize/membership/internal/store"
)

var (
	// ErrNotFound job 记录不存在或已过期
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition 终态之后或逆向的状态变更
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrExpired 记录生命周期已结束，不再写入
	ErrExpired = errors.New("job lifetime elapsed")
)

// Registry job 记录存储
// 生命周期从 createdAt 起算，重写时只使用剩余时间
type Registry struct {
	st  store.Store
	ttl time.Duration
	now func() time.Time
}

// Option 构造选项
type Option func(*Registry)

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New 创建 Registry 实例
func New(st store.Store, ttl time.Duration, opts ...Option) *Registry {
	r := &Registry{
		st:  st,
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TTL job 记录的总生命周期
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Get 读取 job 记录，损坏的记录返回 model.ErrMalformed
func (r *Registry) Get(ctx context.Context, jobID string) (*model.ValidationJob, bool, error) {
	raw, found, err := r.st.Get(ctx, store.JobKey(jobID))
	if err != nil {
		return nil, false, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if !found {
		return nil, false, nil
	}

	job, err := model.DecodeJob(raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return job, true, nil
}

// Put 写入 job 记录，过期时间为 createdAt + ttl
func (r *Registry) Put(ctx context.Context, job *model.ValidationJob, ttl time.Duration) error {
	remaining := job.ExpiresAt(ttl).Sub(r.now())
	if remaining <= 0 {
		return fmt.Errorf("put job %s: %w", job.JobID, ErrExpired)
	}

	raw, err := model.EncodeJob(job)
	if err != nil {
		return err
	}
	if err := r.st.Set(ctx, store.JobKey(job.JobID), raw, remaining); err != nil {
		return fmt.Errorf("put job %s: %w", job.JobID, err)
	}
	return nil
}

// Advance 推进 job 状态，mutate 可补充字段（worker、error 等）
// 终态之后不再变化，也不允许回退
func (r *Registry) Advance(ctx context.Context, jobID string, next model.JobStatus, mutate func(*model.ValidationJob)) (*model.ValidationJob, error) {
	current, found, err := r.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("advance job %s: %w", jobID, ErrNotFound)
	}
	if !current.Status.CanAdvanceTo(next) {
		return current, fmt.Errorf("advance job %s from %s to %s: %w", jobID, current.Status, next, ErrInvalidTransition)
	}

	updated := current.Clone()
	updated.Status = next
	if mutate != nil {
		mutate(updated)
	}

	if err := r.Put(ctx, updated, r.ttl); err != nil {
		return nil, err
	}
	return updated, nil
}
