package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"hize/membership/internal/store"
)

// compareAndDelete 只有持有者才能删除在途标记
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// incrWithTTL 首次计数时设置过期时间
var incrWithTTL = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Options 连接参数，URL 优先
type Options struct {
	URL       string
	Addr      string
	Password  string
	DB        int
	OpTimeout time.Duration // 单次非阻塞命令超时
}

// Store Redis 实现
type Store struct {
	rdb       *redis.Client
	opTimeout time.Duration
}

var _ store.Store = (*Store)(nil)

// New 创建 Redis 存储（不建立连接，调用 Connect）
func New(opts Options) (*Store, error) {
	var redisOpts *redis.Options
	if opts.URL != "" {
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url failed: %w", err)
		}
		redisOpts = parsed
	} else {
		redisOpts = &redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}
	}

	timeout := opts.OpTimeout
	if timeout <= 0 {
		timeout = time.Second
	}

	return &Store{
		rdb:       redis.NewClient(redisOpts),
		opTimeout: timeout,
	}, nil
}

// Connect 测试连接
func (s *Store) Connect(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// wrap 连接层错误统一归为 ErrUnavailable，服务端返回的命令错误原样返回
func wrap(op string, err error) error {
	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		return fmt.Errorf("redis %s: %w", op, err)
	}
	return fmt.Errorf("%w: redis %s: %v", store.ErrUnavailable, op, err)
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	val, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, wrap("get", err)
	}
	return val, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrap("set", err)
	}
	return nil
}

func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ok, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, wrap("setnx", err)
	}
	return ok, nil
}

func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := incrWithTTL.Run(ctx, s.rdb, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, wrap("incr", err)
	}
	return n, nil
}

func (s *Store) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := compareAndDelete.Run(ctx, s.rdb, []string{key}, expected).Int64()
	if err != nil {
		return false, wrap("compare-and-delete", err)
	}
	return n == 1, nil
}

func (s *Store) Push(ctx context.Context, list, value string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.rdb.RPush(ctx, list, value).Err(); err != nil {
		return wrap("rpush", err)
	}
	return nil
}

// Pop BLPOP，阻塞期间不套用单次命令超时
func (s *Store) Pop(ctx context.Context, list string, timeout time.Duration) (string, bool, error) {
	res, err := s.rdb.BLPop(ctx, timeout, list).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", false, err
		}
		return "", false, wrap("blpop", err)
	}
	// BLPOP 返回 [list, value]
	if len(res) != 2 {
		return "", false, fmt.Errorf("redis blpop: unexpected reply length %d", len(res))
	}
	return res[1], true, nil
}

func (s *Store) Len(ctx context.Context, list string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.rdb.LLen(ctx, list).Result()
	if err != nil {
		return 0, wrap("llen", err)
	}
	return n, nil
}

// Scan 使用 SCAN 游标遍历，避免 KEYS 阻塞服务端
func (s *Store) Scan(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	var cursor uint64
	for {
		opCtx, cancel := s.withTimeout(ctx)
		batch, next, err := s.rdb.Scan(opCtx, cursor, prefix+"*", 100).Result()
		cancel()
		if err != nil {
			return nil, wrap("scan", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return wrap("ping", err)
	}
	return nil
}

// Close 关闭 Redis 连接
func (s *Store) Close() error {
	return s.rdb.Close()
}
