package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hize/membership/internal/model"
	"hize/membership/internal/store"
	"hize/membership/pkg/logger"
)

// Cache 校验结果缓存与在途标记
type Cache struct {
	st         store.Store
	legacyScan bool
	logger     logger.Logger
}

// Option Cache 可选参数
type Option func(*Cache)

// WithLegacyScan 索引未命中时扫描全部 result:* 查找没有 resultjob: 索引的旧结果
func WithLegacyScan(enabled bool) Option {
	return func(c *Cache) {
		c.legacyScan = enabled
	}
}

// New 创建 Cache 实例
func New(st store.Store, log logger.Logger, opts ...Option) *Cache {
	c := &Cache{st: st, logger: log}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetResult 读取会员号的缓存结果
// 损坏或旧格式的数据按未命中处理
func (c *Cache) GetResult(ctx context.Context, memberID string) (*model.ValidationResult, bool, error) {
	raw, found, err := c.st.Get(ctx, store.ResultKey(memberID))
	if err != nil {
		return nil, false, fmt.Errorf("get result %s: %w", memberID, err)
	}
	if !found {
		return nil, false, nil
	}

	result, err := model.DecodeResult(raw)
	if err != nil {
		c.logger.Warnf(ctx, "[Cache] Ignoring malformed result for member %s: %v", memberID, err)
		return nil, false, nil
	}
	return result, true, nil
}

// PutResult 写入结果及 job → 会员号索引，两者 TTL 相同
func (c *Cache) PutResult(ctx context.Context, result *model.ValidationResult, ttl time.Duration) error {
	raw, err := model.EncodeResult(result)
	if err != nil {
		return err
	}
	if err := c.st.Set(ctx, store.ResultKey(result.MemberID), raw, ttl); err != nil {
		return fmt.Errorf("put result %s: %w", result.MemberID, err)
	}
	if err := c.st.Set(ctx, store.ResultJobKey(result.JobID), result.MemberID, ttl); err != nil {
		return fmt.Errorf("put result index %s: %w", result.JobID, err)
	}
	return nil
}

// AcquireMarker 原子地占用在途标记
// 已被占用时返回持有者的 jobId；持有者在两次操作之间过期时 owner 为空
func (c *Cache) AcquireMarker(ctx context.Context, memberID, jobID string, ttl time.Duration) (bool, string, error) {
	key := store.PendingKey(memberID)

	acquired, err := c.st.SetNX(ctx, key, jobID, ttl)
	if err != nil {
		return false, "", fmt.Errorf("acquire marker %s: %w", memberID, err)
	}
	if acquired {
		return true, jobID, nil
	}

	owner, found, err := c.st.Get(ctx, key)
	if err != nil {
		return false, "", fmt.Errorf("read marker %s: %w", memberID, err)
	}
	if !found {
		return false, "", nil
	}
	return false, owner, nil
}

// MarkerOwner 当前持有在途标记的 jobId
func (c *Cache) MarkerOwner(ctx context.Context, memberID string) (string, bool, error) {
	owner, found, err := c.st.Get(ctx, store.PendingKey(memberID))
	if err != nil {
		return "", false, fmt.Errorf("read marker %s: %w", memberID, err)
	}
	return owner, found, nil
}

// ReleaseMarker 仅持有者可以释放
func (c *Cache) ReleaseMarker(ctx context.Context, memberID, jobID string) (bool, error) {
	released, err := c.st.CompareAndDelete(ctx, store.PendingKey(memberID), jobID)
	if err != nil {
		return false, fmt.Errorf("release marker %s: %w", memberID, err)
	}
	return released, nil
}

// FindResultByJob 通过 jobId 查找结果
// 只查 resultjob: 索引，开启 WithLegacyScan 时未命中再全量扫描
func (c *Cache) FindResultByJob(ctx context.Context, jobID string) (*model.ValidationResult, bool, error) {
	memberID, found, err := c.st.Get(ctx, store.ResultJobKey(jobID))
	if err != nil {
		return nil, false, fmt.Errorf("get result index %s: %w", jobID, err)
	}
	if found {
		result, ok, err := c.GetResult(ctx, memberID)
		if err != nil {
			return nil, false, err
		}
		if ok && result.JobID == jobID {
			return result, true, nil
		}
	}

	if !c.legacyScan {
		return nil, false, nil
	}
	return c.scanForJob(ctx, jobID)
}

func (c *Cache) scanForJob(ctx context.Context, jobID string) (*model.ValidationResult, bool, error) {
	keys, err := c.st.Scan(ctx, store.ResultKeyPrefix)
	if err != nil {
		return nil, false, fmt.Errorf("scan results: %w", err)
	}

	for _, key := range keys {
		result, ok, err := c.GetResult(ctx, strings.TrimPrefix(key, store.ResultKeyPrefix))
		if err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				return nil, false, err
			}
			continue
		}
		if ok && result.JobID == jobID {
			return result, true, nil
		}
	}
	return nil, false, nil
}
