package main

import (
	"log/slog"
	"time"

	"github.com/clinicdesk/clinicdesk/libs/config"
	"github.com/clinicdesk/clinicdesk/libs/httpx"
	"github.com/redis/go-redis/v9"
)

// rateLimiter shares counters through Redis when a client is available and
// falls back to a per-process token bucket.
func rateLimiter(rdb *redis.Client, logger *slog.Logger) (httpx.Middleware, error) {
	if rdb != nil {
		perMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 600)
		if err != nil {
			return nil, err
		}
		rl := httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", ""))
		logger.Info("rate limiting enabled (redis)", "per_minute", perMinute)
		return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)), nil
	}

	rps, err := config.Float("RATE_LIMIT_RPS", 10)
	if err != nil {
		return nil, err
	}
	burst, err := config.Int("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, err
	}
	logger.Info("rate limiting enabled (in-memory)", "rps", rps, "burst", burst)
	return httpx.NewRateLimiter(rps, burst).Middleware(), nil
}
