// Package paginate drains paginated Clio collection queries, following
// server cursors and deduplicating records across pages.
package paginate

import (
	"context"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/casefront/clio-migrate/pkg/clio"
)

// Prometheus metrics for pagination.
var (
	clioPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clio_pages_fetched_total",
		Help: "Total collection pages fetched by endpoint",
	}, []string{"endpoint"})

	clioTruncationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clio_result_cap_truncations_total",
		Help: "Total queries truncated at the API result cap by endpoint",
	}, []string{"endpoint"})
)

// ListClient is the single-page fetch surface the paginator needs.
// Implemented by *clio.Client.
type ListClient interface {
	GetList(ctx context.Context, endpoint string, params url.Values, pageURL string) (*clio.Page, error)
}

// Query identifies one logical collection query.
type Query struct {
	Endpoint string
	Params   url.Values
}

// Result is the outcome of draining one query.
type Result struct {
	// Records contains the new (previously unseen) records, in fetch order.
	Records []clio.RawRecord

	// Truncated is set when the API refused to page past its result cap.
	// The records collected before the refusal are still returned; the
	// caller fills the gap with narrower partitions.
	Truncated bool
}

// FetchAll drains one query end-to-end. Records whose external ID is
// already in seen are dropped; new IDs are added to seen as they arrive,
// so one set can be shared across the partitions of a planner run.
// Records without an ID are passed through undeduplicated.
func FetchAll(ctx context.Context, client ListClient, q Query, seen map[int64]struct{}) (Result, error) {
	var result Result
	pageURL := ""

	for {
		page, err := client.GetList(ctx, q.Endpoint, q.Params, pageURL)
		if err != nil {
			if clio.IsResultCap(err) {
				// Graceful truncation: the cap is an expected planner
				// signal, not a failure.
				log.Debug().
					Str("endpoint", q.Endpoint).
					Int("collected", len(result.Records)).
					Msg("Query hit result cap, returning partial set")
				clioTruncationsTotal.WithLabelValues(q.Endpoint).Inc()
				result.Truncated = true
				return result, nil
			}
			return result, err
		}

		clioPagesTotal.WithLabelValues(q.Endpoint).Inc()

		// Pages can shift while the underlying data changes mid-scan, so
		// the same record may appear on two pages.
		newRecords := 0
		for _, rec := range page.Records {
			id := rec.ID()
			if id != 0 {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}
			result.Records = append(result.Records, rec)
			newRecords++
		}

		if page.NextURL == "" {
			return result, nil
		}
		if newRecords == 0 {
			// A page of already-seen records means the cursor looped into
			// territory another partition covered; an empty page with a
			// lingering cursor would otherwise be followed forever.
			log.Debug().
				Str("endpoint", q.Endpoint).
				Msg("Page contained no new records, stopping cursor")
			return result, nil
		}
		pageURL = page.NextURL
	}
}
