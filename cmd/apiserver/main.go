package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hize/membership/internal/app"
	"hize/membership/internal/server/handlers/membership"
	"hize/membership/internal/server/middlewares"
	"hize/membership/internal/server/routers"
	"hize/membership/internal/worker"
	"hize/membership/pkg/config"
	"hize/membership/pkg/logger"
)

var (
	configPath = flag.String("config", "./config/apiserver.yaml", "配置文件路径")
)

func main() {
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}

	// 2. 初始化 Logger
	zapLogger, err := logger.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// 3. 初始化应用
	a, cleanup, err := app.InitializeApp(cfg, zapLogger)
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}
	defer cleanup()

	// 4. 同进程 Worker（memory 存储只能在同一进程内消费）
	var mgr worker.Manager
	if cfg.Server.EmbeddedWorker || cfg.Store.Driver == config.DriverMemory {
		rec, err := app.NewRecorder(cfg)
		if err != nil {
			log.Fatalf("Failed to create archive recorder: %v", err)
		}
		defer rec.Close()

		mgr, err = a.NewWorkerManager(app.NewUpstream(cfg), rec)
		if err != nil {
			log.Fatalf("Failed to create worker manager: %v", err)
		}
		go func() {
			if err := mgr.Start(); err != nil {
				log.Fatalf("Manager start failed: %v", err)
			}
		}()
	}

	// 5. 创建 HTTP Server
	limiter := middlewares.NewWindowLimiter(a.Store, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window)
	engine := routers.SetupRoutes(membership.NewHandler(a.Coordinator), routers.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Limiter:        limiter,
	}, zapLogger)

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	// 6. 优雅停机
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, gracefully shutting down...", sig)
		gracefulShutdown(server, mgr, cfg.Server.ShutdownTimeout)
	case err := <-serverErrChan:
		log.Printf("HTTP server error: %v", err)
		if mgr != nil {
			mgr.Shutdown()
		}
	}

	log.Println("Application stopped")
}

// gracefulShutdown 先停止接收请求，再让 Worker 处理完在途任务
func gracefulShutdown(server *http.Server, mgr worker.Manager, timeout time.Duration) {
	log.Println("Stopping HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	} else {
		log.Println("HTTP server stopped gracefully")
	}

	if mgr != nil {
		log.Println("Stopping workers...")
		mgr.Shutdown()
	}

	log.Println("All services stopped gracefully")
}
