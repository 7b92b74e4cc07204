package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for export slots.
var (
	exportsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enrich_exports_active",
		Help: "Number of exports currently holding a slot",
	})

	exportBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrich_export_blocks_total",
		Help: "Total number of exports refused because every slot was taken",
	})

	exportThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrich_export_throttles_total",
		Help: "Total number of exports delayed because slot usage passed the throttle threshold",
	})
)

// ErrTooManyExports is returned by Acquire when every slot is taken.
var ErrTooManyExports = errors.New("too many concurrent exports")

// Config holds tracker configuration.
type Config struct {
	// Limit is the maximum number of concurrent exports.
	Limit int

	// SlotTTL expires the shared counter after this long without activity.
	SlotTTL time.Duration

	// ThrottleDelay is the pause applied to exports past the throttle threshold.
	ThrottleDelay time.Duration
}

// Tracker hands out export slots. With a nil Redis client it counts slots in
// process only.
type Tracker struct {
	redis  *redis.Client
	config Config
	logger zerolog.Logger

	mu    sync.Mutex
	local int
}

// NewTracker creates a new slot tracker.
func NewTracker(redisClient *redis.Client, cfg Config, logger zerolog.Logger) *Tracker {
	if cfg.Limit <= 0 {
		cfg.Limit = 1
	}
	if cfg.SlotTTL <= 0 {
		cfg.SlotTTL = DefaultSlotTTL
	}
	if cfg.ThrottleDelay < 0 {
		cfg.ThrottleDelay = 0
	}
	return &Tracker{
		redis:  redisClient,
		config: cfg,
		logger: logger,
	}
}

// GetState returns the current slot usage. Returns an idle state if Redis
// holds no counter yet.
func (t *Tracker) GetState(ctx context.Context) (*SlotState, error) {
	state := &SlotState{Limit: t.config.Limit}

	if t.redis == nil {
		t.mu.Lock()
		state.Active = t.local
		t.mu.Unlock()
		state.LastUpdate = time.Now()
		state.UpdateHealth()
		return state, nil
	}

	active, err := t.redis.Get(ctx, RedisKeyActiveExports).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get active exports: %w", err)
	}
	state.Active = max(active, 0)

	lastUpdate, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}
	if lastUpdate != "" {
		if ts, err := time.Parse(time.RFC3339Nano, lastUpdate); err == nil {
			state.LastUpdate = ts
		}
	}

	state.UpdateHealth()
	return state, nil
}

// Acquire takes one export slot. It returns ErrTooManyExports when every slot
// is taken and may pause first when usage is high. The returned release func
// must be called when the export ends; calling it more than once is safe.
func (t *Tracker) Acquire(ctx context.Context) (func(), error) {
	held, err := t.incr(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire export slot: %w", err)
	}

	var once sync.Once
	release := func() {
		once.Do(t.decr)
	}

	before := &SlotState{Active: held - 1, Limit: t.config.Limit}
	if before.NeedsBlock() {
		release()
		exportBlocksTotal.Inc()
		t.logger.Warn().
			Int("active", before.Active).
			Int("limit", before.Limit).
			Msg("Export slots exhausted - refusing export")
		return nil, ErrTooManyExports
	}

	if before.NeedsThrottling() && t.config.ThrottleDelay > 0 {
		exportThrottlesTotal.Inc()
		t.logger.Warn().
			Int("active", before.Active).
			Int("remaining", before.Remaining()).
			Dur("delay", t.config.ThrottleDelay).
			Msg("Export slots running low - throttling export")

		timer := time.NewTimer(t.config.ThrottleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return release, nil
}

func (t *Tracker) incr(ctx context.Context) (int, error) {
	if t.redis == nil {
		t.mu.Lock()
		t.local++
		n := t.local
		t.mu.Unlock()
		exportsActive.Set(float64(n))
		return n, nil
	}

	pipe := t.redis.TxPipeline()
	incr := pipe.Incr(ctx, RedisKeyActiveExports)
	pipe.Expire(ctx, RedisKeyActiveExports, t.config.SlotTTL)
	pipe.Set(ctx, RedisKeyLastUpdate, time.Now().Format(time.RFC3339Nano), t.config.SlotTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("store slot state in redis: %w", err)
	}

	n := int(incr.Val())
	exportsActive.Set(float64(n))
	return n, nil
}

// decr gives a slot back. It runs on its own context so a cancelled request
// still frees its slot.
func (t *Tracker) decr() {
	if t.redis == nil {
		t.mu.Lock()
		if t.local > 0 {
			t.local--
		}
		n := t.local
		t.mu.Unlock()
		exportsActive.Set(float64(n))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := t.redis.Decr(ctx, RedisKeyActiveExports).Result()
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to release export slot")
		return
	}
	if n < 0 {
		// counter expired while exports were running
		t.redis.Set(ctx, RedisKeyActiveExports, 0, t.config.SlotTTL)
		n = 0
	}
	t.redis.Set(ctx, RedisKeyLastUpdate, time.Now().Format(time.RFC3339Nano), t.config.SlotTTL)
	exportsActive.Set(float64(n))
}
