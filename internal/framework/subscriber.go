package framework

import (
	"context"
	"errors"
	"sync"
	"time"

	"hize/membership/pkg/logger"
)

// Subscriber 订阅者：从消息队列拉取消息，转发给 Processor
type Subscriber struct {
	cfg        *SubscriberConfig
	source     MessageSource
	logger     logger.Logger
	mu         sync.Mutex
	cancelFunc context.CancelFunc
	stopped    bool
	wg         sync.WaitGroup
}

// NewSubscriber 创建订阅者
func NewSubscriber(cfg *SubscriberConfig, source MessageSource, log logger.Logger) *Subscriber {
	return &Subscriber{
		cfg:    cfg,
		source: source,
		logger: log,
	}
}

// Start 启动订阅循环，Stop 之后调用不再启动
func (s *Subscriber) Start(parentCtx context.Context, inputChan chan<- *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.logger.Infof(parentCtx, "[Subscriber] Already stopped, not starting queue: %s", s.cfg.QueueName)
		return
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s.cancelFunc = cancel

	s.logger.Infof(ctx, "[Subscriber] Starting with %d workers for queue: %s",
		s.cfg.Concurrency, s.cfg.QueueName)

	for i := 0; i < s.cfg.Concurrency; i++ {
		s.wg.Add(1)
		go s.loop(logger.WithWorkerID(ctx, i), i, inputChan)
	}
}

// Stop 停止订阅（不再拉取新消息）
func (s *Subscriber) Stop() {
	s.logger.Infof(context.Background(), "[Subscriber] Stopping...")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
}

// Wait 等待所有订阅协程退出
func (s *Subscriber) Wait() {
	s.wg.Wait()
	s.logger.Infof(context.Background(), "[Subscriber] All workers exited")
}

func (s *Subscriber) loop(ctx context.Context, workerID int, inputChan chan<- *Message) {
	defer s.wg.Done()
	s.logger.Infof(ctx, "[Subscriber-%d] Started", workerID)

	for {
		msg, err := s.source.Consume(ctx, s.cfg.QueueName, s.cfg.Timeout, s.cfg.TTR)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				s.logger.Infof(ctx, "[Subscriber-%d] Context cancelled, exiting", workerID)
				return
			}
			// 网络抖动不退出
			s.logger.Warnf(ctx, "[Subscriber-%d] Consume error: %v, retrying...", workerID, err)
			if !s.sleep(ctx, s.cfg.ErrorBackoff) {
				s.logger.Infof(ctx, "[Subscriber-%d] Context cancelled, exiting", workerID)
				return
			}
			continue
		}

		// 超时未拉到
		if msg == nil {
			if ctx.Err() != nil {
				s.logger.Infof(ctx, "[Subscriber-%d] Context cancelled, exiting", workerID)
				return
			}
			continue
		}

		select {
		case inputChan <- msg:
			s.logger.Debugf(ctx, "[Subscriber-%d] Message sent: %s", workerID, msg.ID)

		case <-ctx.Done():
			s.logger.Warnf(ctx, "[Subscriber-%d] Returning message due to shutdown: %s", workerID, msg.ID)
			s.giveBack(msg)
			return
		}

		if !s.sleep(ctx, s.cfg.Rate) {
			s.logger.Infof(ctx, "[Subscriber-%d] Context cancelled, exiting", workerID)
			return
		}
	}
}

// giveBack 已拉取但未交给 Processor 的消息放回队列
func (s *Subscriber) giveBack(msg *Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.source.Release(ctx, msg); err != nil {
		s.logger.Errorf(ctx, "[Subscriber] Release message %s failed: %v", msg.ID, err)
	}
}

// sleep 返回 false 表示 ctx 已取消
func (s *Subscriber) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
