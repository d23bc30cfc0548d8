package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"earnlink/internal/config"
	"earnlink/internal/handler"
	"earnlink/internal/infrastructure/cache"
	"earnlink/internal/infrastructure/database"
	"earnlink/internal/infrastructure/lock"
	"earnlink/internal/infrastructure/mq"
	"earnlink/internal/infrastructure/profilesync"
	"earnlink/internal/job"
	"earnlink/internal/repository"
	"earnlink/internal/service"
	"earnlink/internal/session"
	"earnlink/pkg/idgen"
)

func main() {
	configPath := os.Getenv("EARNLINK_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	idgen.Init(1)

	// 存储：memory 仅用于单实例开发环境
	var store repository.Store
	if cfg.Storage.Driver == config.StorageDriverMemory {
		store = repository.NewMemoryStore()
		log.Println("使用内存存储，重启后数据丢失")
	} else {
		db, err := database.Open(cfg)
		if err != nil {
			log.Fatalf("初始化数据库失败: %v", err)
		}
		store = repository.NewGormStore(db)
	}

	sessionTTL := cache.SessionTTL(&cfg.Redis)
	deps := service.Dependencies{
		Store:    store,
		Locker:   lock.NewLocalLocker(),
		Sessions: session.NewMemoryStore(sessionTTL),
	}

	// Redis：分布式锁和会话
	if cfg.Redis.Enabled {
		redisClient, err := cache.InitRedis(&cfg.Redis)
		if err != nil {
			log.Fatalf("初始化 Redis 失败: %v", err)
		}
		defer redisClient.Close()
		deps.Locker = lock.NewRedisLocker(redisClient)
		deps.Sessions = session.NewRedisStore(redisClient, sessionTTL)
	}

	if cfg.ProfileSync.Enabled {
		deps.Syncer = profilesync.NewClient(&cfg.ProfileSync)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Kafka 未启用时消息保留在本地消息表中
	if cfg.Kafka.Enabled {
		publisher, err := mq.InitKafka(&cfg.Kafka)
		if err != nil {
			log.Fatalf("初始化 Kafka 失败: %v", err)
		}
		defer publisher.Close()

		outboxSender := job.NewOutboxSender(store, publisher, cfg.Business.MaxRetryCount)
		go outboxSender.Start(ctx)
	}

	reconcileJob := job.NewLedgerReconcileJob(service.NewLedgerService(deps), cfg.Business.ReconcileSpec)
	if err := reconcileJob.Start(ctx); err != nil {
		log.Fatalf("启动对账任务失败: %v", err)
	}

	router := handler.SetupRouter(deps, cfg)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 先停止后台任务，再关闭 HTTP 服务
	cancel()
	reconcileJob.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
}
