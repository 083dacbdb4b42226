package memstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"hize/membership/internal/store"
)

var errClosed = errors.New("memstore closed")

type entry struct {
	value     string
	expiresAt time.Time // 零值表示不过期
}

// Store 进程内存储，单实例部署或测试使用
type Store struct {
	mu     sync.Mutex
	now    func() time.Time
	kv     map[string]entry
	lists  map[string][]string
	notify chan struct{}
	closed bool
	down   bool
}

var _ store.Store = (*Store)(nil)

// Option 构造选项
type Option func(*Store)

// WithClock 注入时钟，测试用来跨越 TTL 边界
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New 创建内存存储
func New(opts ...Option) *Store {
	s := &Store{
		now:    time.Now,
		kv:     make(map[string]entry),
		lists:  make(map[string][]string),
		notify: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAvailable 模拟后端不可达
func (s *Store) SetAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = !available
}

// check 调用方持有锁
func (s *Store) check() error {
	if s.closed {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, errClosed)
	}
	if s.down {
		return store.ErrUnavailable
	}
	return nil
}

// lookup 调用方持有锁，顺带清理过期 key
func (s *Store) lookup(key string) (entry, bool) {
	e, ok := s.kv[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.kv, key)
		return entry{}, false
	}
	return e, true
}

func (s *Store) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(); err != nil {
		return "", false, err
	}
	e, ok := s.lookup(key)
	return e.value, ok, nil
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(); err != nil {
		return err
	}
	s.kv[key] = entry{value: value, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *Store) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(); err != nil {
		return false, err
	}
	if _, ok := s.lookup(key); ok {
		return false, nil
	}
	s.kv[key] = entry{value: value, expiresAt: s.expiry(ttl)}
	return true, nil
}

func (s *Store) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(); err != nil {
		return 0, err
	}
	e, ok := s.lookup(key)
	if !ok {
		s.kv[key] = entry{value: "1", expiresAt: s.expiry(ttl)}
		return 1, nil
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("incr %s: value is not an integer", key)
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	s.kv[key] = e
	return n, nil
}

func (s *Store) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(); err != nil {
		return false, err
	}
	e, ok := s.lookup(key)
	if !ok || e.value != expected {
		return false, nil
	}
	delete(s.kv, key)
	return true, nil
}

func (s *Store) Push(_ context.Context, list, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(); err != nil {
		return err
	}
	s.lists[list] = append(s.lists[list], value)
	s.broadcast()
	return nil
}

// broadcast 唤醒所有阻塞的 Pop，调用方持有锁
func (s *Store) broadcast() {
	close(s.notify)
	s.notify = make(chan struct{})
}

func (s *Store) Pop(ctx context.Context, list string, timeout time.Duration) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if err := s.check(); err != nil {
			s.mu.Unlock()
			return "", false, err
		}
		if items := s.lists[list]; len(items) > 0 {
			value := items[0]
			if len(items) == 1 {
				delete(s.lists, list)
			} else {
				s.lists[list] = items[1:]
			}
			s.mu.Unlock()
			return value, true, nil
		}
		wait := s.notify
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-timer.C:
			return "", false, nil
		case <-wait:
		}
	}
}

func (s *Store) Len(_ context.Context, list string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(); err != nil {
		return 0, err
	}
	return int64(len(s.lists[list])), nil
}

func (s *Store) Scan(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(); err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	for key := range s.kv {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if _, ok := s.lookup(key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Connect 内存实现无需连接
func (s *Store) Connect(ctx context.Context) error {
	return s.Ping(ctx)
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check()
}

// Close 关闭后所有操作返回 ErrUnavailable，阻塞中的 Pop 立即返回
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.broadcast()
	return nil
}
