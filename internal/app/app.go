package app

import (
	"context"
	"fmt"
	"time"

	"hize/membership/internal/archive"
	"hize/membership/internal/cache"
	"hize/membership/internal/coordinator"
	"hize/membership/internal/framework"
	"hize/membership/internal/queue"
	"hize/membership/internal/registry"
	"hize/membership/internal/store"
	"hize/membership/internal/store/memstore"
	"hize/membership/internal/store/redisstore"
	"hize/membership/internal/upstream"
	"hize/membership/internal/validation"
	"hize/membership/internal/worker"
	"hize/membership/pkg/config"
	"hize/membership/pkg/logger"
)

const connectTimeout = 5 * time.Second

// App 进程内共享的组件
type App struct {
	Config      *config.Config
	Store       store.Store
	Queue       queue.Queue
	Cache       *cache.Cache
	Registry    *registry.Registry
	Coordinator *coordinator.Coordinator
	Logger      logger.Logger
}

// InitializeApp 连接存储并组装 Coordinator，返回的 cleanup 关闭存储连接
func InitializeApp(cfg *config.Config, log logger.Logger) (*App, func(), error) {
	st, err := NewStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := st.Connect(ctx); err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("failed to connect store: %w", err)
	}
	log.Infof(ctx, "[App] Store connected: driver=%s", cfg.Store.Driver)

	q := NewQueue(cfg, st)
	c := cache.New(st, log, cache.WithLegacyScan(cfg.Cache.LegacyScan))
	reg := registry.New(st, cfg.TTL.Job)
	coord := coordinator.New(c, reg, q, st, coordinator.Options{MarkerTTL: cfg.TTL.Marker}, log)

	cleanup := func() {
		if err := st.Close(); err != nil {
			log.Warnf(context.Background(), "[App] Close store failed: %v", err)
		}
	}

	return &App{
		Config:      cfg,
		Store:       st,
		Queue:       q,
		Cache:       c,
		Registry:    reg,
		Coordinator: coord,
		Logger:      log,
	}, cleanup, nil
}

// NewStore 按 store.driver 创建共享存储
func NewStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memstore.New(), nil
	case config.DriverRedis:
		st, err := redisstore.New(redisstore.Options{
			URL:      cfg.Redis.URL,
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %q", cfg.Store.Driver)
	}
}

// NewQueue 按 queue.driver 创建工作队列
func NewQueue(cfg *config.Config, st store.Store) queue.Queue {
	if cfg.Queue.Driver == config.DriverLmstfy {
		return queue.NewLmstfyQueue(queue.LmstfyOptions{
			Host:      cfg.Lmstfy.Host,
			Port:      cfg.Lmstfy.Port,
			Namespace: cfg.Lmstfy.Namespace,
			Token:     cfg.Lmstfy.Token,
			Name:      cfg.Queue.Name,
			Tries:     cfg.Lmstfy.Tries,
			JobTTL:    cfg.TTL.Job,
		})
	}
	return queue.NewListQueue(st, cfg.Queue.Name)
}

// NewRecorder 开启归档时连接 MySQL，否则返回空实现
func NewRecorder(cfg *config.Config) (archive.Recorder, error) {
	if !cfg.Archive.Enabled {
		return archive.NopRecorder{}, nil
	}
	rec, err := archive.NewGormRecorder(cfg.Archive.DSN)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// NewWorkerManager 组装上游客户端、归档和校验 Handler
func (a *App) NewWorkerManager(v upstream.Validator, rec archive.Recorder) (worker.Manager, error) {
	factory := func(workerName string) framework.Handler {
		h := validation.NewHandler(a.Cache, a.Registry, v, rec, validation.Options{
			WorkerName: workerName,
			ResultTTL:  a.Config.TTL.Result,
		}, a.Logger)
		return h.Handle
	}
	return worker.NewManagerInstance(a.Config.Workers, a.Queue.Name(), a.Queue, factory, a.Logger)
}

// NewUpstream 创建上游校验客户端
func NewUpstream(cfg *config.Config) upstream.Validator {
	return upstream.NewClient(upstream.Options{
		BaseURL:         cfg.Upstream.BaseURL,
		APIKey:          cfg.Upstream.APIKey,
		Timeout:         cfg.Upstream.Timeout,
		RequestInterval: cfg.Upstream.RequestInterval,
	})
}
