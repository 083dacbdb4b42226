package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable 后端存储不可达（连接断开、超时等）
var ErrUnavailable = errors.New("store unavailable")

// Store 共享存储能力接口
// 单 key 原子，跨 key 无事务
type Store interface {
	// Get 读取 key，不存在时 found=false
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set 无条件覆盖并重置过期时间
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX key 不存在时写入，返回是否写入成功
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Incr 计数加一，key 新建时设置 ttl，返回加一后的值
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// CompareAndDelete 当前值等于 expected 时删除
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)

	// Push 追加到列表尾部
	Push(ctx context.Context, list, value string) error

	// Pop 从列表头部阻塞弹出，超时返回 found=false
	Pop(ctx context.Context, list string, timeout time.Duration) (value string, found bool, err error)

	// Len 列表长度
	Len(ctx context.Context, list string) (int64, error)

	// Scan 列出指定前缀的 key，不保证顺序
	Scan(ctx context.Context, prefix string) ([]string, error)

	// Connect 建立连接，启动时调用一次
	Connect(ctx context.Context) error

	// Ping 连通性检查
	Ping(ctx context.Context) error

	// Close 释放连接
	Close() error
}
