package ratelimit

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const defaultPrefix = "ratelimit"

// NewRedis builds a limiter for a formatted rate such as "30-M" backed by Redis.
func NewRedis(rdb *redis.Client, formatted, prefix string) (*limiter.Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(strings.TrimSpace(formatted))
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", formatted, err)
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultPrefix
	}
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("limiter store: %w", err)
	}
	return limiter.New(store, rate), nil
}
