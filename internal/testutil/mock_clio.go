// Package testutil provides a configurable mock of the Clio collection
// API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/casefront/clio-migrate/pkg/clio"
)

// CapMessage mirrors the API's error text when a query is too broad.
const CapMessage = "This query would return more than the maximum number of records"

// MockClio is an httptest server speaking the Clio collection protocol:
// bearer auth, filterable list endpoints, cursor paging via
// meta.paging.next, rate-limit responses and result-cap errors.
type MockClio struct {
	server *httptest.Server

	mu   sync.Mutex
	data map[string][]clio.RawRecord

	// Token is the only accepted bearer token.
	Token string

	// Cap fails any single query once it pages past this many records.
	// Zero disables the cap.
	Cap int

	// RateLimitNext makes the next N list requests fail with 429.
	RateLimitNext int

	// RetryAfter is the Retry-After hint on injected 429s, in seconds.
	// Zero omits the header.
	RetryAfter int

	// Remaining is reported in X-RateLimit-Remaining.
	Remaining int

	RequestCount int
}

// NewMockClio starts the server with a default token and a healthy rate
// budget. Callers own Close.
func NewMockClio() *MockClio {
	m := &MockClio{
		data:      make(map[string][]clio.RawRecord),
		Token:     "test-token",
		Remaining: 100,
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the base URL, used as the client's BaseURL.
func (m *MockClio) URL() string {
	return m.server.URL
}

// Close shuts the server down.
func (m *MockClio) Close() {
	m.server.Close()
}

// SetRecords installs the full record set behind one endpoint, e.g.
// "/matters".
func (m *MockClio) SetRecords(endpoint string, records []clio.RawRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[endpoint] = records
}

func (m *MockClio) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	rateLimited := m.RateLimitNext > 0
	if rateLimited {
		m.RateLimitNext--
	}
	retryAfter := m.RetryAfter
	remaining := m.Remaining
	m.mu.Unlock()

	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))

	if r.Header.Get("Authorization") != "Bearer "+m.Token {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid or missing access token")
		return
	}

	if rateLimited {
		if retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		}
		writeError(w, http.StatusTooManyRequests, "RateLimited", "rate limit exceeded")
		return
	}

	endpoint := strings.TrimSuffix(r.URL.Path, ".json")
	m.mu.Lock()
	records, ok := m.data[endpoint]
	m.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "NotFound", fmt.Sprintf("unknown endpoint %s", endpoint))
		return
	}

	params := r.URL.Query()
	filtered := filter(records, params)

	offset, _ := strconv.Atoi(params.Get("offset"))
	limit, _ := strconv.Atoi(params.Get("limit"))
	if limit <= 0 {
		limit = 200
	}

	// Paging past the cap fails the whole query; everything served so far
	// stays with the caller.
	if m.Cap > 0 && offset >= m.Cap {
		writeError(w, http.StatusBadRequest, "QueryLimit", CapMessage)
		return
	}

	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	var page []clio.RawRecord
	if offset < len(filtered) {
		page = filtered[offset:end]
	}

	body := map[string]any{"data": page}
	if end < len(filtered) {
		nextParams := r.URL.Query()
		nextParams.Set("offset", strconv.Itoa(end))
		nextParams.Set("limit", strconv.Itoa(limit))
		body["meta"] = map[string]any{
			"paging": map[string]any{
				"next": m.server.URL + r.URL.Path + "?" + nextParams.Encode(),
			},
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"type": errType, "message": message},
	})
}

// filter applies the query-parameter surface the fetch partitions use:
// exact match on status/state/type fields, name-prefix match for query,
// year/date-range filters for the date-partitioned kinds.
func filter(records []clio.RawRecord, params map[string][]string) []clio.RawRecord {
	out := make([]clio.RawRecord, 0, len(records))
	for _, rec := range records {
		if matches(rec, params) {
			out = append(out, rec)
		}
	}
	return out
}

func matches(rec clio.RawRecord, params map[string][]string) bool {
	for key, vals := range params {
		if len(vals) == 0 {
			continue
		}
		val := vals[0]
		switch key {
		case "limit", "offset", "fields", "order":
			continue
		case "query":
			if !strings.HasPrefix(strings.ToLower(rec.Str("name")), strings.ToLower(val)) {
				return false
			}
		case "start_date":
			t, err := time.Parse("2006-01-02", val)
			if err != nil || rec.Time("date").Before(t) {
				return false
			}
		case "end_date":
			t, err := time.Parse("2006-01-02", val)
			if err != nil || rec.Time("date").After(t.AddDate(0, 0, 1).Add(-time.Nanosecond)) {
				return false
			}
		case "updated_since":
			since, err := time.Parse(time.RFC3339, val)
			if err != nil || rec.Time("updated_at").Before(since) {
				return false
			}
		case "issued_after":
			t, err := time.Parse("2006-01-02", val)
			if err != nil || rec.Time("issued_at").Before(t) {
				return false
			}
		case "issued_before":
			t, err := time.Parse("2006-01-02", val)
			if err != nil || !rec.Time("issued_at").Before(t.AddDate(0, 0, 1)) {
				return false
			}
		default:
			if !strings.EqualFold(rec.Str(key), val) {
				return false
			}
		}
	}
	return true
}
