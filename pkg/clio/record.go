package clio

import (
	"time"
)

// Kind tags an external record with its entity type.
type Kind string

const (
	KindUser          Kind = "user"
	KindContact       Kind = "contact"
	KindMatter        Kind = "matter"
	KindActivity      Kind = "activity"
	KindCalendarEntry Kind = "calendar_entry"
	KindBill          Kind = "bill"
	KindNote          Kind = "note"
)

// AllKinds lists every entity kind in import dependency order.
var AllKinds = []Kind{
	KindUser,
	KindContact,
	KindMatter,
	KindActivity,
	KindBill,
	KindCalendarEntry,
	KindNote,
}

// RawRecord is one record as returned by the API, before normalization.
// Field shapes vary by firm account and API version; the typed accessors
// below are the only tolerated way to read them. Everything downstream of
// the importer's normalize functions consumes canonical typed rows instead.
type RawRecord map[string]any

// ID returns the external record identifier, or 0 when absent.
// Some note sub-records carry no id of their own.
func (r RawRecord) ID() int64 {
	return r.Int64("id")
}

// Str returns the string at key, or "" when absent or not a string.
func (r RawRecord) Str(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Int64 returns the integer at key. JSON numbers decode as float64; both
// shapes are accepted.
func (r RawRecord) Int64(key string) int64 {
	switch v := r[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

// Float64 returns the number at key, or 0 when absent.
func (r RawRecord) Float64(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

// Bool returns the boolean at key, or false when absent.
func (r RawRecord) Bool(key string) bool {
	if v, ok := r[key].(bool); ok {
		return v
	}
	return false
}

// Time parses the RFC 3339 timestamp at key, accepting date-only values.
// Returns the zero time when absent or unparseable.
func (r RawRecord) Time(key string) time.Time {
	s := r.Str(key)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	return time.Time{}
}

// Sub returns the nested object at key, or nil.
func (r RawRecord) Sub(key string) RawRecord {
	if v, ok := r[key].(map[string]any); ok {
		return RawRecord(v)
	}
	return nil
}

// SubList returns the nested object list at key, or nil.
func (r RawRecord) SubList(key string) []RawRecord {
	list, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]RawRecord, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, RawRecord(m))
		}
	}
	return out
}

// Page is one page of a collection response.
type Page struct {
	Records []RawRecord

	// NextURL is the cursor link for the following page, empty on the last page.
	NextURL string
}
