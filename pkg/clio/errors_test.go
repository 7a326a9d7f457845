package clio

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	const capPhrase = "maximum number of records"

	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{name: "rate limited", status: 429, want: KindRateLimited},
		{name: "unauthorized", status: 401, want: KindUnauthorized},
		{name: "forbidden", status: 403, want: KindForbidden},
		{
			name:   "result cap on 400",
			status: 400,
			body:   `{"error":{"message":"This query would return more than the maximum number of records"}}`,
			want:   KindResultCap,
		},
		{
			name:   "result cap on 422",
			status: 422,
			body:   "Maximum Number Of Records exceeded",
			want:   KindResultCap,
		},
		{name: "plain 400", status: 400, body: "bad request", want: KindOther},
		{name: "server error", status: 500, want: KindServer},
		{name: "bad gateway", status: 502, want: KindServer},
		{name: "not found", status: 404, want: KindOther},
		{name: "success", status: 200, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyStatus(tt.status, tt.body, capPhrase); got != tt.want {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestClassifyStatus_EmptyCapPhraseNeverMatches(t *testing.T) {
	got := classifyStatus(400, "anything at all", "")
	if got != KindOther {
		t.Errorf("classifyStatus with empty phrase = %q, want %q", got, KindOther)
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{KindRateLimited, true},
		{KindServer, true},
		{KindNetwork, true},
		{KindUnauthorized, false},
		{KindForbidden, false},
		{KindResultCap, false},
		{KindOther, false},
		{"", false},
	}

	for _, tt := range tests {
		if got := shouldRetry(tt.kind); got != tt.want {
			t.Errorf("shouldRetry(%q) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestErrorKindOf(t *testing.T) {
	apiErr := &APIError{StatusCode: 429, Kind: KindRateLimited, Message: "slow down"}

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "direct", err: apiErr, want: KindRateLimited},
		{name: "wrapped once", err: fmt.Errorf("fetch: %w", apiErr), want: KindRateLimited},
		{
			name: "wrapped through exhaustion",
			err:  fmt.Errorf("%w after 4 attempts: %w", ErrRetryExhausted, apiErr),
			want: KindRateLimited,
		},
		{name: "plain error", err: errors.New("dial tcp: timeout"), want: KindNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorKindOf(tt.err); got != tt.want {
				t.Errorf("ErrorKindOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := &APIError{StatusCode: 503, Kind: KindServer, Message: "upstream down", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want unwrapping")
	}
	msg := err.Error()
	if msg == "" {
		t.Fatal("Error() is empty")
	}

	bare := &APIError{StatusCode: 401, Kind: KindUnauthorized, Message: "expired"}
	if bare.Error() == "" {
		t.Error("Error() without cause is empty")
	}
}

func TestHelperPredicates(t *testing.T) {
	capErr := fmt.Errorf("partition: %w", &APIError{StatusCode: 400, Kind: KindResultCap})
	authErr := fmt.Errorf("fetch: %w", &APIError{StatusCode: 401, Kind: KindUnauthorized})

	if !IsResultCap(capErr) {
		t.Error("IsResultCap = false for wrapped result-cap error")
	}
	if IsResultCap(authErr) {
		t.Error("IsResultCap = true for unauthorized error")
	}
	if !IsUnauthorized(authErr) {
		t.Error("IsUnauthorized = false for wrapped 401")
	}
	if IsUnauthorized(capErr) {
		t.Error("IsUnauthorized = true for result-cap error")
	}
}
