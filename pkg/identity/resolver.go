// Package identity maps external Clio identifiers and natural keys to
// internal row identifiers during one import session. Re-runs and firms
// with pre-existing data resolve to their prior rows instead of creating
// duplicates.
package identity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/casefront/clio-migrate/pkg/clio"
)

// ClioKey tags an external record ID with its namespace.
func ClioKey(id int64) string {
	return fmt.Sprintf("clio:%d", id)
}

// EmailKey normalizes an email address into a lookup key.
// Returns "" for blank input so callers can skip registration.
func EmailKey(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return ""
	}
	return "email:" + email
}

// NameKey normalizes a display name into a lookup key: case-folded with
// runs of whitespace collapsed.
func NameKey(name string) string {
	name = strings.ToLower(strings.Join(strings.Fields(name), " "))
	if name == "" {
		return ""
	}
	return "name:" + name
}

// NumberKey normalizes a display number (matter number, bill number).
func NumberKey(number string) string {
	number = strings.TrimSpace(strings.ToLower(number))
	if number == "" {
		return ""
	}
	return "number:" + number
}

// Resolver holds the per-kind identity maps for one import session.
// Not safe for concurrent use; the import pipeline is strictly sequential.
type Resolver struct {
	byKind map[clio.Kind]map[string]uuid.UUID
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		byKind: make(map[clio.Kind]map[string]uuid.UUID),
	}
}

// Register stores every non-empty key pointing at internalID. Within a
// session a given key maps to at most one internal identifier: the first
// registration wins, later aliases for other IDs are ignored so a
// re-imported record cannot hijack an existing mapping.
func (r *Resolver) Register(kind clio.Kind, internalID uuid.UUID, keys ...string) {
	m := r.byKind[kind]
	if m == nil {
		m = make(map[string]uuid.UUID)
		r.byKind[kind] = m
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, exists := m[key]; exists {
			continue
		}
		m[key] = internalID
	}
}

// Resolve tries each candidate key in order and returns the first hit.
// Callers pass the explicit external-ID key first, natural keys after.
func (r *Resolver) Resolve(kind clio.Kind, keys ...string) (uuid.UUID, bool) {
	m := r.byKind[kind]
	if m == nil {
		return uuid.Nil, false
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if id, ok := m[key]; ok {
			return id, true
		}
	}
	return uuid.Nil, false
}

// Count returns the number of registered keys for a kind.
func (r *Resolver) Count(kind clio.Kind) int {
	return len(r.byKind[kind])
}

// Known returns the number of distinct internal identifiers for a kind.
func (r *Resolver) Known(kind clio.Kind) int {
	distinct := make(map[uuid.UUID]struct{})
	for _, id := range r.byKind[kind] {
		distinct[id] = struct{}{}
	}
	return len(distinct)
}
