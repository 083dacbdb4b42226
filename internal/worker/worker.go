package worker

import (
	"context"
	"sync"

	"hize/membership/internal/framework"
	"hize/membership/pkg/logger"
)

// Worker 接口
type Worker interface {
	Start()
	Shutdown()
	GetName() string
}

// WorkerInstance 一条 Subscriber → Processor 流水线
type WorkerInstance struct {
	ctx        context.Context
	name       string
	subscriber *framework.Subscriber
	processor  *framework.Processor
	inputChan  chan *framework.Message
	mu         sync.Mutex
	closed     bool
	shutdownCh chan struct{}
	logger     logger.Logger
}

// NewWorkerInstance 创建 Worker 实例
func NewWorkerInstance(
	ctx context.Context,
	name string,
	subscriberCfg *framework.SubscriberConfig,
	processorCfg *framework.ProcessorConfig,
	source framework.MessageSource,
	handler framework.Handler,
	log logger.Logger,
) Worker {
	return &WorkerInstance{
		ctx:        ctx,
		name:       name,
		subscriber: framework.NewSubscriber(subscriberCfg, source, log),
		processor:  framework.NewProcessor(processorCfg, handler, source, log),
		inputChan:  make(chan *framework.Message, processorCfg.BufferSize),
		shutdownCh: make(chan struct{}),
		logger:     log,
	}
}

// Start 启动 Worker，阻塞到 Shutdown 完成
// Shutdown 先于 Start 时不再启动
func (w *WorkerInstance) Start() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Infof(w.ctx, "[Worker] %s already closed, not starting", w.name)
		<-w.shutdownCh
		return
	}
	w.processor.Start(w.ctx, w.inputChan)
	w.subscriber.Start(w.ctx, w.inputChan)
	w.mu.Unlock()

	w.logger.Infof(w.ctx, "[Worker] %s started", w.name)
	<-w.shutdownCh
}

// Shutdown 优雅退出
func (w *WorkerInstance) Shutdown() {
	w.logger.Infof(w.ctx, "[Worker] %s began to close", w.name)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	// 1. 停止拉取新消息
	w.subscriber.Stop()

	// 2. 等待 Subscriber 完全退出
	w.subscriber.Wait()

	// 3. Processor 进入 Drain 模式
	w.processor.SignalShutdown()

	// 4. 等待剩余消息处理完
	w.processor.Wait()

	close(w.shutdownCh)
	w.logger.Infof(w.ctx, "[Worker] %s shutdown complete", w.name)
}

// GetName 获取 Worker 名称
func (w *WorkerInstance) GetName() string {
	return w.name
}
