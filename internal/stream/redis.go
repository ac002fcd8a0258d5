package stream

import (
	"github.com/jzmtx/routeguardweb/internal/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns nil when no relay is configured; the hub then
// stays local-only.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
