// Package ratelimit tracks the Clio API rate budget and gates requests.
// It monitors the X-RateLimit-Remaining and X-RateLimit-Reset headers so
// that a migration stays under the per-token throughput limit instead of
// burning its retry budget on 429 responses.
package ratelimit

import (
	"time"
)

// Redis keys for rate budget state storage. The budget is per OAuth token
// and shared across processes, so state lives in Redis rather than memory.
const (
	RedisKeyRemaining      = "clio:rate_budget:remaining"
	RedisKeyResetTimestamp = "clio:rate_budget:reset_timestamp"
	RedisKeyLastUpdate     = "clio:rate_budget:last_update"
)

// Thresholds for rate budget decisions.
const (
	// ThresholdCritical blocks requests when remaining calls fall below this
	// value, leaving headroom for the final requests of a partition.
	ThresholdCritical = 3

	// ThresholdWarning applies throttling when remaining calls fall below
	// this value.
	ThresholdWarning = 15

	// ThresholdHealthy indicates normal operation.
	ThresholdHealthy = 40
)

// BudgetState represents the current Clio rate budget.
// Shared across all client instances via Redis.
type BudgetState struct {
	// Remaining is the number of requests left in the current window.
	// Extracted from the X-RateLimit-Remaining header.
	Remaining int `json:"remaining"`

	// ResetAt is the timestamp when the window resets.
	// Parsed from the X-RateLimit-Reset header (unix seconds).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is the timestamp when this state was last updated.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy indicates whether the budget is in a healthy state.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *BudgetState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should wait for the window reset.
func (s *BudgetState) NeedsCriticalBlock() bool {
	return s.Remaining < ThresholdCritical
}

// NeedsThrottling returns true if requests should be throttled due to warning threshold.
func (s *BudgetState) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the budget window resets.
// Returns 0 if the reset time has already passed.
func (s *BudgetState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current Remaining.
func (s *BudgetState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}
