// Package connstore holds per-connection API credentials.
//
// A connection is one authorized link to the external practice-management
// account, keyed by a generated connection id. The store is injected into
// the migration service rather than kept as ambient state, so sessions
// can never leak credentials across connections and tests can swap the
// backend. Disconnecting deletes the credential; any in-flight fetch then
// fails with an unauthorized error.
package connstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/casefront/clio-migrate/pkg/clio"
)

var (
	// ErrNotFound indicates the connection id is unknown, expired or
	// disconnected.
	ErrNotFound = errors.New("connection not found")
)

var (
	storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connstore_errors_total",
			Help: "Total number of credential store operation errors",
		},
		[]string{"operation"},
	)

	storeEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connstore_entries",
			Help: "Connections currently held in the memory credential store",
		},
	)
)

// DefaultTTL is how long a credential survives without being refreshed.
const DefaultTTL = 12 * time.Hour

// Credentials is one connection's OAuth state.
type Credentials struct {
	// AccessToken is the bearer token sent on every API call.
	AccessToken string `json:"access_token"`

	// RefreshToken allows re-authorization when the access token expires.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresAt is when the access token stops working, zero when unknown.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the access token is past its expiry.
func (c Credentials) Expired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// Store is the credential keyspace. Both implementations apply a TTL so
// abandoned connections age out on their own.
type Store interface {
	Put(ctx context.Context, connectionID string, creds Credentials) error
	Get(ctx context.Context, connectionID string) (Credentials, error)
	Delete(ctx context.Context, connectionID string) error
}

// TokenSource binds one connection's stored credential to the API client.
// A deleted or expired credential surfaces as a token error, which the
// client reports as unauthorized.
func TokenSource(s Store, connectionID string) clio.TokenSource {
	return tokenSource{store: s, connectionID: connectionID}
}

type tokenSource struct {
	store        Store
	connectionID string
}

func (t tokenSource) Token(ctx context.Context) (string, error) {
	creds, err := t.store.Get(ctx, t.connectionID)
	if err != nil {
		return "", fmt.Errorf("connection %s: %w", t.connectionID, err)
	}
	if creds.Expired() {
		return "", fmt.Errorf("connection %s: access token expired", t.connectionID)
	}
	return creds.AccessToken, nil
}
