package batch

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/casefront/clio-migrate/pkg/clio"
)

// matterFixture is one record in the capped fake dataset.
type matterFixture struct {
	id     int64
	status string
}

// cappedClient simulates the Clio collection protocol over a fixed dataset:
// status filtering, cursor paging, and the hard result cap on any single
// query whose matching set exceeds the cap.
type cappedClient struct {
	data      []matterFixture
	cap       int
	pageSize  int
	failLabel string // status value whose partition always rate-limits
}

func (c *cappedClient) GetList(ctx context.Context, endpoint string, params url.Values, pageURL string) (*clio.Page, error) {
	status := params.Get("status")
	offset := 0
	if pageURL != "" {
		// Cursor format: "<status>|<offset>"
		parts := strings.SplitN(pageURL, "|", 2)
		status = parts[0]
		offset, _ = strconv.Atoi(parts[1])
	}

	if status == c.failLabel && c.failLabel != "" {
		return nil, &clio.APIError{StatusCode: 429, Kind: clio.KindRateLimited, Message: "rate limited"}
	}

	var matching []matterFixture
	for _, m := range c.data {
		if status == "" || m.status == status {
			matching = append(matching, m)
		}
	}

	if len(matching) > c.cap && offset+c.pageSize > c.cap {
		return nil, &clio.APIError{
			StatusCode: 400,
			Kind:       clio.KindResultCap,
			Message:    "Exceeded maximum number of records",
		}
	}

	end := offset + c.pageSize
	if end > len(matching) {
		end = len(matching)
	}
	records := make([]clio.RawRecord, 0, end-offset)
	for _, m := range matching[offset:end] {
		records = append(records, clio.RawRecord{"id": float64(m.id), "status": m.status})
	}

	next := ""
	if end < len(matching) {
		next = fmt.Sprintf("%s|%d", status, end)
	}
	return &clio.Page{Records: records, NextURL: next}, nil
}

// buildMatters creates count matters cycling through the given statuses.
func buildMatters(count int, statuses []string) []matterFixture {
	data := make([]matterFixture, count)
	for i := range data {
		data[i] = matterFixture{
			id:     int64(i + 1),
			status: statuses[i%len(statuses)],
		}
	}
	return data
}

func TestRun_PartitionsDefeatResultCap(t *testing.T) {
	// 15,000 matters, at most 10,000 per query, statuses evenly
	// distributed: the partitioned plan must recover every record with
	// no duplicates.
	data := buildMatters(15000, []string{"open", "pending", "closed"})
	client := &cappedClient{data: data, cap: 10000, pageSize: 200}
	runner := NewRunner(client)

	result, err := runner.Run(context.Background(), PlanFor(clio.KindMatter, time.Now()), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.Records) != 15000 {
		t.Errorf("len(Records) = %d, want 15000", len(result.Records))
	}

	ids := make(map[int64]struct{}, len(result.Records))
	for _, rec := range result.Records {
		id := rec.ID()
		if _, dup := ids[id]; dup {
			t.Fatalf("duplicate external ID %d in merged result", id)
		}
		ids[id] = struct{}{}
	}
}

func TestRun_CatchAllRecoversUnknownStatus(t *testing.T) {
	// Records with an out-of-vocabulary status are only reachable via the
	// unfiltered sweep.
	data := buildMatters(300, []string{"open", "pending", "closed", "limbo"})
	client := &cappedClient{data: data, cap: 10000, pageSize: 100}
	runner := NewRunner(client)

	result, err := runner.Run(context.Background(), PlanFor(clio.KindMatter, time.Now()), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.Records) != 300 {
		t.Errorf("len(Records) = %d, want 300 (sweep must recover unknown-status records)", len(result.Records))
	}
}

func TestRun_PartitionFailureIsWarningNotAbort(t *testing.T) {
	data := buildMatters(90, []string{"open", "pending", "closed"})
	client := &cappedClient{data: data, cap: 10000, pageSize: 50, failLabel: "pending"}
	runner := NewRunner(client)

	result, err := runner.Run(context.Background(), PlanFor(clio.KindMatter, time.Now()), nil)
	if err != nil {
		t.Fatalf("Run() error = %v, want nil (partition failures degrade to warnings)", err)
	}

	if len(result.Warnings) == 0 {
		t.Error("expected a warning for the failed partition")
	}

	// The sweep partition recovers the pending records anyway.
	if len(result.Records) != 90 {
		t.Errorf("len(Records) = %d, want 90", len(result.Records))
	}
}

func TestRun_UnauthorizedAborts(t *testing.T) {
	client := &unauthorizedClient{}
	runner := NewRunner(client)

	_, err := runner.Run(context.Background(), PlanFor(clio.KindMatter, time.Now()), nil)
	if err == nil {
		t.Fatal("Run() error = nil, want unauthorized error")
	}
	if !clio.IsUnauthorized(err) {
		t.Errorf("error kind = %s, want unauthorized", clio.ErrorKindOf(err))
	}
}

type unauthorizedClient struct{}

func (u *unauthorizedClient) GetList(ctx context.Context, endpoint string, params url.Values, pageURL string) (*clio.Page, error) {
	return nil, &clio.APIError{StatusCode: 401, Kind: clio.KindUnauthorized, Message: "token expired"}
}

func TestRun_ProgressCallback(t *testing.T) {
	data := buildMatters(30, []string{"open", "pending", "closed"})
	client := &cappedClient{data: data, cap: 10000, pageSize: 100}
	runner := NewRunner(client)

	var calls int
	var lastCumulative int
	_, err := runner.Run(context.Background(), PlanFor(clio.KindMatter, time.Now()), func(label string, cumulative int) {
		calls++
		if cumulative < lastCumulative {
			t.Errorf("cumulative count went backwards: %d -> %d", lastCumulative, cumulative)
		}
		lastCumulative = cumulative
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if calls != 4 {
		t.Errorf("progress calls = %d, want 4 (one per partition)", calls)
	}
	if lastCumulative != 30 {
		t.Errorf("final cumulative = %d, want 30", lastCumulative)
	}
}
