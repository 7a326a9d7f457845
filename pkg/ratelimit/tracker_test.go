package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBudgetStateFromHeaders(t *testing.T) {
	tests := []struct {
		name            string
		remainHeader    string
		expectedRemain  int
		expectedHealthy bool
	}{
		{
			name:            "healthy state",
			remainHeader:    "100",
			expectedRemain:  100,
			expectedHealthy: true,
		},
		{
			name:            "warning state",
			remainHeader:    "10",
			expectedRemain:  10,
			expectedHealthy: false,
		},
		{
			name:            "critical state",
			remainHeader:    "2",
			expectedRemain:  2,
			expectedHealthy: false,
		},
		{
			name:            "at healthy threshold",
			remainHeader:    "40",
			expectedRemain:  40,
			expectedHealthy: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &BudgetState{
				Remaining:  parseIntOrZero(tt.remainHeader),
				ResetAt:    time.Now().Add(60 * time.Second),
				LastUpdate: time.Now(),
			}
			state.UpdateHealth()

			if state.Remaining != tt.expectedRemain {
				t.Errorf("Remaining = %d, want %d", state.Remaining, tt.expectedRemain)
			}

			if state.IsHealthy != tt.expectedHealthy {
				t.Errorf("IsHealthy = %v, want %v", state.IsHealthy, tt.expectedHealthy)
			}
		})
	}
}

func TestUpdateFromHeaders_InvalidHeaders(t *testing.T) {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(nil, logger)

	tests := []struct {
		name         string
		remainHeader string
		resetHeader  string
		shouldError  bool
	}{
		{
			name:         "missing remain header",
			remainHeader: "",
			resetHeader:  "1756500000",
			shouldError:  false, // Should return nil for missing headers
		},
		{
			name:         "invalid remain header",
			remainHeader: "invalid",
			resetHeader:  "1756500000",
			shouldError:  true,
		},
		{
			name:         "invalid reset header",
			remainHeader: "100",
			resetHeader:  "invalid",
			shouldError:  true,
		},
		{
			name:         "both headers missing",
			remainHeader: "",
			resetHeader:  "",
			shouldError:  false, // Should return nil for missing headers
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.remainHeader != "" {
				headers.Set("X-RateLimit-Remaining", tt.remainHeader)
			}
			if tt.resetHeader != "" {
				headers.Set("X-RateLimit-Reset", tt.resetHeader)
			}

			err := tracker.UpdateFromHeaders(context.Background(), headers)

			if tt.shouldError && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.shouldError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestShouldAllowRequest_Logic(t *testing.T) {
	tests := []struct {
		name           string
		remaining      int
		expectBlock    bool
		expectThrottle bool
	}{
		{
			name:           "healthy - allow immediately",
			remaining:      100,
			expectBlock:    false,
			expectThrottle: false,
		},
		{
			name:           "at healthy threshold - allow immediately",
			remaining:      ThresholdHealthy,
			expectBlock:    false,
			expectThrottle: false,
		},
		{
			name:           "warning - allow with throttle",
			remaining:      10,
			expectBlock:    false,
			expectThrottle: true,
		},
		{
			name:           "critical - block",
			remaining:      2,
			expectBlock:    true,
			expectThrottle: false,
		},
		{
			name:           "at critical threshold - allow",
			remaining:      ThresholdCritical,
			expectBlock:    false,
			expectThrottle: true, // Still in warning range
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &BudgetState{
				Remaining:  tt.remaining,
				ResetAt:    time.Now().Add(60 * time.Second),
				LastUpdate: time.Now(),
			}
			state.UpdateHealth()

			shouldBlock := state.NeedsCriticalBlock()
			shouldThrottle := state.NeedsThrottling()

			if shouldBlock != tt.expectBlock {
				t.Errorf("NeedsCriticalBlock() = %v, want %v (remaining=%d)", shouldBlock, tt.expectBlock, tt.remaining)
			}

			if shouldThrottle != tt.expectThrottle {
				t.Errorf("NeedsThrottling() = %v, want %v (remaining=%d)", shouldThrottle, tt.expectThrottle, tt.remaining)
			}
		})
	}
}

func parseIntOrZero(val string) int {
	var result int
	for _, ch := range val {
		if ch >= '0' && ch <= '9' {
			result = result*10 + int(ch-'0')
		} else {
			return 0
		}
	}
	return result
}
