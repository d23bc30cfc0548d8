package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"earnlink/internal/config"

	"github.com/go-redis/redis/v8"
)

const defaultSessionTTL = 72 * time.Hour

// Options Redis 同时承载分布式锁和会话，连接池按锁的重试并发预留
func Options(cfg *config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     50,
		MinIdleConns: 5,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}

// SessionTTL 会话有效期，未配置时为 72 小时
func SessionTTL(cfg *config.RedisConfig) time.Duration {
	if cfg.SessionTTLHours <= 0 {
		return defaultSessionTTL
	}
	return time.Duration(cfg.SessionTTLHours) * time.Hour
}

// InitRedis 连接并探活，失败时返回错误由调用方决定是否退出
func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(Options(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: addr=%s: %w", client.Options().Addr, err)
	}

	log.Printf("Redis 连接成功: addr=%s, db=%d", client.Options().Addr, cfg.DB)
	return client, nil
}
