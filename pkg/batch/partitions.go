package batch

import (
	"fmt"
	"net/url"
	"time"

	"github.com/casefront/clio-migrate/pkg/clio"
)

// The API refuses to page a single query past roughly this many records.
// The value is observed, not documented; plans are built so that each
// partition is expected to stay well under it.
const DefaultResultCap = 10000

// clioEpochYear is the first year Clio hosted firm data; no activity or
// bill predates it.
const clioEpochYear = 2008

// nameBuckets are the first-character partitions for name-filtered queries.
const nameBuckets = "abcdefghijklmnopqrstuvwxyz0123456789"

// contactTypes are the two record types the contacts endpoint serves.
var contactTypes = []string{"Person", "Company"}

// matterStatuses is the fixed status vocabulary of the matters endpoint.
var matterStatuses = []string{"open", "pending", "closed"}

// activityStatuses is the billing-status vocabulary of the activities endpoint.
var activityStatuses = []string{"billable", "non_billable", "billed"}

// billStates is the state vocabulary of the bills endpoint.
var billStates = []string{"draft", "awaiting_approval", "awaiting_payment", "paid", "void"}

// Partition is one bounded query against a collection endpoint.
type Partition struct {
	// Label identifies the partition in logs and progress callbacks.
	Label string

	// Params are the filter parameters narrowing the query.
	Params url.Values
}

// Plan is the ordered partition list that covers one entity kind.
// Later partitions only contribute records earlier ones missed; the final
// partitions are deliberately broad catch-all sweeps.
type Plan struct {
	Kind       clio.Kind
	Endpoint   string
	Partitions []Partition
}

// Endpoints per entity kind.
var endpoints = map[clio.Kind]string{
	clio.KindUser:          "/users",
	clio.KindContact:       "/contacts",
	clio.KindMatter:        "/matters",
	clio.KindActivity:      "/activities",
	clio.KindCalendarEntry: "/calendar_entries",
	clio.KindBill:          "/bills",
	clio.KindNote:          "/notes",
}

// Endpoint returns the collection endpoint for a kind.
func Endpoint(kind clio.Kind) string {
	return endpoints[kind]
}

// PlanFor builds the partition plan for an entity kind. Kinds whose volume
// never approaches the result cap get a single unfiltered partition.
func PlanFor(kind clio.Kind, now time.Time) Plan {
	plan := Plan{Kind: kind, Endpoint: endpoints[kind]}

	switch kind {
	case clio.KindContact:
		plan.Partitions = contactPartitions()
	case clio.KindMatter:
		plan.Partitions = matterPartitions()
	case clio.KindActivity:
		plan.Partitions = activityPartitions(now)
	case clio.KindBill:
		plan.Partitions = billPartitions(now)
	default:
		plan.Partitions = []Partition{{Label: string(kind) + "/all", Params: url.Values{}}}
	}
	return plan
}

// contactPartitions splits contacts by (type, first character of name),
// then sweeps per type, then fully unfiltered. The sweeps only contribute
// contacts whose names start outside the bucket alphabet.
func contactPartitions() []Partition {
	var parts []Partition
	for _, ctype := range contactTypes {
		for _, ch := range nameBuckets {
			parts = append(parts, Partition{
				Label: fmt.Sprintf("contacts/%s/%c", ctype, ch),
				Params: url.Values{
					"type":  {ctype},
					"query": {string(ch)},
				},
			})
		}
	}
	for _, ctype := range contactTypes {
		parts = append(parts, Partition{
			Label:  "contacts/" + ctype + "/sweep",
			Params: url.Values{"type": {ctype}},
		})
	}
	parts = append(parts, Partition{
		Label:  "contacts/sweep",
		Params: url.Values{},
	})
	return parts
}

// matterPartitions splits matters by status plus a catch-all sweep for
// records with missing or unknown status.
func matterPartitions() []Partition {
	var parts []Partition
	for _, status := range matterStatuses {
		parts = append(parts, Partition{
			Label:  "matters/" + status,
			Params: url.Values{"status": {status}},
		})
	}
	parts = append(parts, Partition{
		Label:  "matters/sweep",
		Params: url.Values{},
	})
	return parts
}

// activityPartitions splits time and expense entries by (status, calendar
// year). Activities need the two-dimensional split: they are both
// status-bucketed and volume-heavy per firm-year. A final recently-updated
// sweep catches records shifted across partition boundaries mid-scan.
func activityPartitions(now time.Time) []Partition {
	var parts []Partition
	for _, status := range activityStatuses {
		for year := clioEpochYear; year <= now.Year(); year++ {
			parts = append(parts, Partition{
				Label: fmt.Sprintf("activities/%s/%d", status, year),
				Params: url.Values{
					"status":     {status},
					"start_date": {fmt.Sprintf("%d-01-01", year)},
					"end_date":   {fmt.Sprintf("%d-12-31", year)},
				},
			})
		}
	}
	parts = append(parts, Partition{
		Label: "activities/recent-sweep",
		Params: url.Values{
			"updated_since": {now.AddDate(0, 0, -90).UTC().Format(time.RFC3339)},
		},
	})
	return parts
}

// billPartitions splits bills by (state, year, month) on the issue-date
// range filter. This is the finest granularity: bill volume per firm can
// be large and the issue date is distinct from the creation date.
func billPartitions(now time.Time) []Partition {
	var parts []Partition
	for _, state := range billStates {
		for year := clioEpochYear; year <= now.Year(); year++ {
			for month := time.January; month <= time.December; month++ {
				first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
				if first.After(now) {
					break
				}
				last := first.AddDate(0, 1, -1)
				parts = append(parts, Partition{
					Label: fmt.Sprintf("bills/%s/%d-%02d", state, year, month),
					Params: url.Values{
						"state":         {state},
						"issued_after":  {first.Format("2006-01-02")},
						"issued_before": {last.Format("2006-01-02")},
					},
				})
			}
		}
	}
	parts = append(parts, Partition{
		Label:  "bills/sweep",
		Params: url.Values{},
	})
	return parts
}
