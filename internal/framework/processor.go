package framework

import (
	"context"
	"sync"
	"time"

	"hize/membership/pkg/logger"
)

// Processor 处理器：接收消息，调用业务处理函数，按结果确认消息
type Processor struct {
	cfg        *ProcessorConfig
	handler    Handler
	source     MessageSource
	logger     logger.Logger
	shutdownCh chan struct{}
	once       sync.Once
	wg         sync.WaitGroup
}

// NewProcessor 创建处理器
func NewProcessor(cfg *ProcessorConfig, handler Handler, source MessageSource, log logger.Logger) *Processor {
	return &Processor{
		cfg:        cfg,
		handler:    handler,
		source:     source,
		logger:     log,
		shutdownCh: make(chan struct{}),
	}
}

// Start 启动处理协程
// ctx 不随 Subscriber 一起取消，Drain 阶段仍能完成在途消息
func (p *Processor) Start(ctx context.Context, inputChan <-chan *Message) {
	p.logger.Infof(ctx, "[Processor] Starting with %d workers", p.cfg.Concurrency)

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i, inputChan)
	}
}

// SignalShutdown 通知 Processor 准备退出（进入 Drain 模式）
func (p *Processor) SignalShutdown() {
	p.once.Do(func() {
		p.logger.Infof(context.Background(), "[Processor] Shutdown signal received")
		close(p.shutdownCh)
	})
}

// Wait 等待所有处理协程退出
func (p *Processor) Wait() {
	p.wg.Wait()
	p.logger.Infof(context.Background(), "[Processor] All workers exited")
}

func (p *Processor) loop(ctx context.Context, workerID int, inputChan <-chan *Message) {
	defer p.wg.Done()
	p.logger.Infof(ctx, "[Processor-%d] Started", workerID)

	for {
		select {
		case msg := <-inputChan:
			p.process(ctx, msg, workerID)

		// Drain 模式：处理完剩余消息再退出
		case <-p.shutdownCh:
			p.logger.Infof(ctx, "[Processor-%d] Entering DRAIN mode", workerID)
			count := 0
			for {
				select {
				case msg := <-inputChan:
					p.process(ctx, msg, workerID)
					count++
				default:
					p.logger.Infof(ctx, "[Processor-%d] Drained %d messages, exiting", workerID, count)
					return
				}
			}
		}
	}
}

func (p *Processor) process(ctx context.Context, msg *Message, workerID int) {
	if msg == nil {
		return
	}

	startTime := time.Now()

	procCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	procCtx = logger.WithWorkerID(procCtx, workerID)

	p.logger.Infof(procCtx, "[Processor-%d] Processing message: %s", workerID, msg.ID)

	outcome := p.invoke(procCtx, msg)

	p.logger.Infof(procCtx, "[Processor-%d] Message processed: %s, outcome: %s, duration: %v",
		workerID, msg.ID, outcome, time.Since(startTime))

	p.settle(ctx, msg, outcome)
}

// invoke 调用业务处理函数，panic 视为不可处理
func (p *Processor) invoke(ctx context.Context, msg *Message) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf(ctx, "[Processor] handler panic on message %s: %v", msg.ID, r)
			outcome = OutcomeBury
		}
	}()
	return p.handler(ctx, msg)
}

// settle 根据处理结果确认 / 放回消息
// 处理超时不影响确认，单独给 3 秒
func (p *Processor) settle(ctx context.Context, msg *Message, outcome Outcome) {
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	switch outcome {
	case OutcomeRelease:
		if err := p.source.Release(ackCtx, msg); err != nil {
			p.logger.Errorf(ackCtx, "[Processor] Release message %s failed: %v", msg.ID, err)
		}
	case OutcomeBury:
		p.logger.Errorf(ackCtx, "[Processor] Burying message %s: %s", msg.ID, string(msg.Data))
		fallthrough
	default:
		if err := p.source.Ack(ackCtx, msg); err != nil {
			p.logger.Errorf(ackCtx, "[Processor] Ack message %s failed: %v", msg.ID, err)
		}
	}
}
