package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"hize/membership/internal/framework"
	"hize/membership/pkg/config"
	"hize/membership/pkg/logger"
)

// HandlerFactory 按 Worker 名称构造消息处理函数
type HandlerFactory func(workerName string) framework.Handler

// Manager 接口
type Manager interface {
	Start() error
	Shutdown()
}

// ManagerInstance 管理同一队列上的所有 Worker
type ManagerInstance struct {
	ctx        context.Context
	workers    []Worker
	mu         sync.Mutex
	started    bool
	closing    *atomic.Bool
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	logger     logger.Logger
}

// NewManagerInstance 按配置创建所有 Worker
func NewManagerInstance(
	workerCfgs []config.WorkerConfig,
	queueName string,
	source framework.MessageSource,
	factory HandlerFactory,
	log logger.Logger,
) (Manager, error) {
	if len(workerCfgs) == 0 {
		return nil, fmt.Errorf("at least one worker is required")
	}
	if queueName == "" {
		return nil, fmt.Errorf("queue name is required")
	}

	ctx := context.Background()
	m := &ManagerInstance{
		ctx:        ctx,
		closing:    atomic.NewBool(false),
		shutdownCh: make(chan struct{}),
		workers:    make([]Worker, 0, len(workerCfgs)),
		logger:     log,
	}

	for _, wc := range workerCfgs {
		subCfg, procCfg := framework.FromWorkerConfig(queueName, wc)
		w := NewWorkerInstance(ctx, wc.Name, subCfg, procCfg, source, factory(wc.Name), log)
		m.workers = append(m.workers, w)
	}

	log.Infof(ctx, "[Manager] Initialized with queue: %s, workers: %d", queueName, len(m.workers))
	return m, nil
}

// Start 启动所有 Worker，阻塞到 Shutdown 完成
func (m *ManagerInstance) Start() error {
	m.mu.Lock()
	if m.closing.Load() {
		m.mu.Unlock()
		m.logger.Infof(m.ctx, "[Manager] Shutdown before start, nothing to run")
		<-m.shutdownCh
		return nil
	}
	m.started = true
	m.logger.Infof(m.ctx, "[Manager] Starting...")

	for _, worker := range m.workers {
		w := worker
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			w.Start()
		}()
		m.logger.Infof(m.ctx, "[Manager] Worker started: %s", w.GetName())
	}

	m.mu.Unlock()
	m.logger.Infof(m.ctx, "[Manager] Start success")

	<-m.shutdownCh
	return nil
}

// Shutdown 优雅退出，可重复调用
func (m *ManagerInstance) Shutdown() {
	if !m.closing.CAS(false, true) {
		return
	}
	m.logger.Infof(m.ctx, "[Manager] Began to close")

	// 进行中的 Start 拉起全部 Worker 后才能拿到锁
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		m.logger.Infof(m.ctx, "[Manager] Closing before start")
	}

	for _, worker := range m.workers {
		m.logger.Infof(m.ctx, "[Manager] Shutting down worker: %s", worker.GetName())
		worker.Shutdown()
	}

	m.wg.Wait()
	close(m.shutdownCh)

	m.logger.Infof(m.ctx, "[Manager] Shutdown complete")
}
