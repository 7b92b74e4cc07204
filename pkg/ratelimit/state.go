// Package ratelimit caps the number of exports streaming at once across all
// service instances. Every export holds one slot for its whole lifetime; the
// slot count lives in Redis so instances behind a load balancer share it.
package ratelimit

import (
	"time"
)

// Redis keys for slot state storage.
const (
	RedisKeyActiveExports = "enrich:exports:active"
	RedisKeyLastUpdate    = "enrich:exports:last_update"
)

// Thresholds as fractions of the configured slot limit.
const (
	// ThrottleRatio delays new exports once this share of slots is in use.
	// Queued users see a slower start instead of a refusal.
	ThrottleRatio = 0.75

	// DefaultSlotTTL expires the counter when no export has touched it for
	// this long, so slots held by a crashed instance are eventually freed.
	DefaultSlotTTL = time.Hour

	// DefaultThrottleDelay is the pause applied to throttled exports.
	DefaultThrottleDelay = time.Second
)

// SlotState represents the current export slot usage.
type SlotState struct {
	// Active is the number of exports currently holding a slot.
	Active int `json:"active"`

	// Limit is the maximum number of concurrent exports.
	Limit int `json:"limit"`

	// LastUpdate is when a slot was last acquired or released.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true while usage is below the throttle threshold.
	IsHealthy bool `json:"is_healthy"`
}

// NeedsBlock returns true if every slot is taken.
func (s *SlotState) NeedsBlock() bool {
	return s.Active >= s.Limit
}

// NeedsThrottling returns true if usage passed the throttle threshold but a
// slot is still free.
func (s *SlotState) NeedsThrottling() bool {
	return s.Active >= s.throttleAt() && !s.NeedsBlock()
}

// Remaining returns the number of free slots.
func (s *SlotState) Remaining() int {
	if s.Active >= s.Limit {
		return 0
	}
	return s.Limit - s.Active
}

// UpdateHealth updates the IsHealthy field based on current usage.
func (s *SlotState) UpdateHealth() {
	s.IsHealthy = s.Active < s.throttleAt()
}

func (s *SlotState) throttleAt() int {
	at := int(float64(s.Limit) * ThrottleRatio)
	if at < 1 {
		at = 1
	}
	return at
}
