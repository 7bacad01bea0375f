package config

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns a lock client for best-effort posting locks.
// Redis is optional: a missing or unreachable REDIS_ADDRESS returns nil and
// the engine runs on database row locks alone.
func ConnectRedis() *redislock.Client {
	address := strings.TrimSpace(os.Getenv("REDIS_ADDRESS"))
	if address == "" {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: address,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Printf("redis unreachable at %s, posting locks disabled: %v", address, err)
		return nil
	}
	return redislock.New(rdb)
}
