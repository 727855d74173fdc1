package database

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ruralpay/ledger/internal/config"
)

// InitRedis returns nil when redis is unreachable; callers fall back to the
// audit notifier.
func InitRedis(cfg config.RedisConfig) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[REDIS] Connection failed, continuing without Redis: %v", err)
		rdb.Close()
		return nil
	}

	log.Println("[REDIS] Connection established")
	return rdb
}
