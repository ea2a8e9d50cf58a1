// Package ratelimit tracks server-side throttling signals (HTTP 429).
//
// The tracker is observability only: it counts rate-limit hits for logs,
// Prometheus, and the end-of-run summary, and never gates or delays
// requests. Backoff in response to a 429 is the fetch engine's job.
package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var rateLimitHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tiki_rate_limit_hits_total",
	Help: "Total number of HTTP 429 responses received from the catalog API",
})

// RedisKeyHits is the key under which hits are mirrored across runs.
const RedisKeyHits = "tiki:rate_limit:hits"

// Tracker counts rate-limit hits for the current run, with an optional
// Redis mirror shared across runs.
type Tracker struct {
	redis  *redis.Client // nil disables the mirror
	logger zerolog.Logger

	hits    atomic.Int64
	lastHit atomic.Int64 // unix nanos, 0 = never
}

// NewTracker creates a rate limit tracker. redisClient may be nil, in which
// case hits are only counted in memory.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// Hit records one 429 response.
func (t *Tracker) Hit(ctx context.Context) {
	n := t.hits.Add(1)
	t.lastHit.Store(time.Now().UnixNano())
	rateLimitHitsTotal.Inc()

	if t.redis != nil {
		if err := t.redis.Incr(ctx, RedisKeyHits).Err(); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to mirror rate limit hit to redis")
		}
	}

	t.logger.Debug().Int64("hits", n).Msg("Rate limit hit recorded")
}

// Hits returns the number of hits recorded by this run.
func (t *Tracker) Hits() int64 {
	return t.hits.Load()
}

// LastHit returns the time of the most recent hit in this run.
// ok is false when no hit has been recorded.
func (t *Tracker) LastHit() (when time.Time, ok bool) {
	nanos := t.lastHit.Load()
	if nanos == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

// TotalAcrossRuns returns the mirrored hit count from Redis. Without a Redis
// client it falls back to this run's count.
func (t *Tracker) TotalAcrossRuns(ctx context.Context) (int64, error) {
	if t.redis == nil {
		return t.hits.Load(), nil
	}

	total, err := t.redis.Get(ctx, RedisKeyHits).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get mirrored hit count: %w", err)
	}
	return total, nil
}
