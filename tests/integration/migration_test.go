package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casefront/clio-migrate/internal/testutil"
	"github.com/casefront/clio-migrate/pkg/clio"
	"github.com/casefront/clio-migrate/pkg/connstore"
	"github.com/casefront/clio-migrate/pkg/importer"
	"github.com/casefront/clio-migrate/pkg/migration"
	"github.com/casefront/clio-migrate/pkg/progress"
	"github.com/casefront/clio-migrate/pkg/store"
)

// fastRetry keeps retries and waits short enough for tests.
func fastRetry() clio.RetryConfig {
	return clio.RetryConfig{
		MaxAttempts:          3,
		InitialBackoff:       time.Millisecond,
		MaxBackoff:           5 * time.Millisecond,
		BackoffMultiplier:    2.0,
		RateLimitBuffer:      0,
		RateLimitDefaultWait: 5 * time.Millisecond,
	}
}

func newClient(t *testing.T, mock *testutil.MockClio, pageSize int) *clio.Client {
	t.Helper()
	c, err := clio.New(clio.Config{
		BaseURL:         mock.URL(),
		UserAgent:       "clio-migrate-test/0.0.0",
		PageSize:        pageSize,
		ResultCapPhrase: "maximum number of records",
		Retry:           fastRetry(),
	}, clio.StaticToken("test-token"), nil)
	require.NoError(t, err)
	return c
}

func ref(id int64) map[string]any {
	return map[string]any{"id": float64(id)}
}

func seedMock(mock *testutil.MockClio) {
	mock.SetRecords("/users", []clio.RawRecord{
		{"id": float64(1), "email": "ada@example.com", "first_name": "Ada", "last_name": "Lovelace", "enabled": true},
		{"id": float64(2), "email": "bob@example.com", "first_name": "Bob", "last_name": "Barrister", "role": "owner", "enabled": true},
	})
	mock.SetRecords("/contacts", []clio.RawRecord{
		{"id": float64(11), "type": "Person", "name": "carol client", "primary_email_address": "carol@client.com"},
		{"id": float64(12), "type": "Company", "name": "acme widgets"},
	})
	mock.SetRecords("/matters", []clio.RawRecord{
		{"id": float64(21), "display_number": "00001-Client", "status": "Open", "billing_method": "hourly",
			"client": ref(11), "responsible_attorney": ref(1), "open_date": "2020-01-15"},
		{"id": float64(22), "display_number": "00002-Acme", "status": "Closed", "billing_method": "flat",
			"client": ref(12), "open_date": "2019-03-01"},
	})
	mock.SetRecords("/activities", []clio.RawRecord{
		{"id": float64(31), "type": "TimeEntry", "status": "billable", "date": "2020-02-01",
			"quantity": float64(3600), "price": float64(250), "matter": ref(21), "user": ref(1)},
	})
	mock.SetRecords("/bills", []clio.RawRecord{
		{"id": float64(41), "number": "INV-100", "state": "paid", "matter": ref(21), "client": ref(11),
			"issued_at": "2020-03-01", "total": float64(1000)},
	})
	mock.SetRecords("/calendar_entries", []clio.RawRecord{
		{"id": float64(51), "type": "court_date", "summary": "Probate hearing", "matter": ref(21),
			"start_at": "2020-04-10T09:00:00Z", "end_at": "2020-04-10T10:00:00Z"},
	})
	mock.SetRecords("/notes", []clio.RawRecord{
		{"id": float64(61), "subject": "Intake", "detail": "initial consult", "matter": ref(21), "date": "2020-01-16"},
	})
}

func TestEndToEndMigration(t *testing.T) {
	mock := testutil.NewMockClio()
	defer mock.Close()
	seedMock(mock)

	client := newClient(t, mock, 50)

	creds := connstore.NewMemory(time.Hour)
	defer creds.Close()
	tracker := progress.NewTracker(time.Hour)
	defer tracker.Close()
	mem := store.NewMemStore()

	svc := migration.NewService(migration.Config{
		Credentials: creds,
		Store:       mem,
		Tracker:     tracker,
		NewFetcher: func(tokens clio.TokenSource) importer.Fetcher {
			return importer.NewClioFetcher(client)
		},
	})
	defer svc.Close()

	ctx := context.Background()
	require.NoError(t, creds.Put(ctx, "conn-1", connstore.Credentials{AccessToken: "test-token"}))

	sessionID, err := svc.StartSession(ctx, migration.StartRequest{
		ConnectionID: "conn-1",
		FirmName:     "Haviland & Associates",
	})
	require.NoError(t, err)
	svc.Wait(sessionID)

	snap, err := svc.GetProgress(sessionID)
	require.NoError(t, err)
	require.Equal(t, progress.SessionCompleted, snap.State, "logs: %v", snap.Logs)

	result, err := svc.GetResult(sessionID)
	require.NoError(t, err)
	assert.True(t, result.FirmCreated)
	assert.Equal(t, 2, result.Counts[clio.KindUser].Created)
	assert.Equal(t, 2, result.Counts[clio.KindContact].Created)
	assert.Equal(t, 2, result.Counts[clio.KindMatter].Created)
	assert.Equal(t, 1, result.Counts[clio.KindActivity].Created)
	assert.Equal(t, 1, result.Counts[clio.KindBill].Created)
	assert.Equal(t, 1, result.Counts[clio.KindCalendarEntry].Created)
	assert.Equal(t, 1, result.Counts[clio.KindNote].Created)

	require.Len(t, mem.Matters, 2)
	require.NotNil(t, mem.Matters[0].ClientID)
	assert.Equal(t, mem.Contacts[0].ID, *mem.Matters[0].ClientID)

	// Second session against the same firm resolves everything.
	sessionID2, err := svc.StartSession(ctx, migration.StartRequest{
		ConnectionID: "conn-1",
		FirmName:     "Haviland & Associates",
	})
	require.NoError(t, err)
	svc.Wait(sessionID2)

	result2, err := svc.GetResult(sessionID2)
	require.NoError(t, err)
	assert.False(t, result2.FirmCreated)
	for _, kind := range clio.AllKinds {
		assert.Zero(t, result2.Counts[kind].Created, "kind %s duplicated rows", kind)
	}
	assert.Len(t, mem.Users, 2)
	assert.Len(t, mem.Matters, 2)
}

func TestRateLimitedFetchRecovers(t *testing.T) {
	mock := testutil.NewMockClio()
	defer mock.Close()
	seedMock(mock)
	mock.RateLimitNext = 1
	mock.RetryAfter = 0

	client := newClient(t, mock, 50)
	fetcher := importer.NewClioFetcher(client)

	result, err := fetcher.Fetch(context.Background(), clio.KindUser, nil)
	require.NoError(t, err)
	assert.Len(t, result.Records, 2)
	assert.Empty(t, result.Warnings)
}

func TestResultCapTruncationDegradesGracefully(t *testing.T) {
	mock := testutil.NewMockClio()
	defer mock.Close()

	// 25 open matters behind a cap of 10: the status partition and the
	// sweep both truncate, so the fetch recovers only the first 10 and
	// reports warnings instead of failing.
	var matters []clio.RawRecord
	for i := 1; i <= 25; i++ {
		matters = append(matters, clio.RawRecord{
			"id": float64(i), "display_number": numberFor(i), "status": "Open",
		})
	}
	mock.SetRecords("/matters", matters)
	mock.Cap = 10

	client := newClient(t, mock, 5)
	fetcher := importer.NewClioFetcher(client)

	result, err := fetcher.Fetch(context.Background(), clio.KindMatter, nil)
	require.NoError(t, err)
	assert.Len(t, result.Records, 10)
	assert.NotEmpty(t, result.Warnings)

	seen := make(map[int64]struct{})
	for _, rec := range result.Records {
		_, dup := seen[rec.ID()]
		assert.False(t, dup, "duplicate id %d across partitions", rec.ID())
		seen[rec.ID()] = struct{}{}
	}
}

func TestInvalidTokenFailsSession(t *testing.T) {
	mock := testutil.NewMockClio()
	defer mock.Close()
	seedMock(mock)
	mock.Token = "rotated-away"

	client := newClient(t, mock, 50)

	creds := connstore.NewMemory(time.Hour)
	defer creds.Close()
	tracker := progress.NewTracker(time.Hour)
	defer tracker.Close()
	mem := store.NewMemStore()

	svc := migration.NewService(migration.Config{
		Credentials: creds,
		Store:       mem,
		Tracker:     tracker,
		NewFetcher: func(tokens clio.TokenSource) importer.Fetcher {
			return importer.NewClioFetcher(client)
		},
	})
	defer svc.Close()

	ctx := context.Background()
	require.NoError(t, creds.Put(ctx, "conn-1", connstore.Credentials{AccessToken: "test-token"}))

	sessionID, err := svc.StartSession(ctx, migration.StartRequest{
		ConnectionID: "conn-1",
		FirmName:     "Test Firm",
	})
	require.NoError(t, err)
	svc.Wait(sessionID)

	snap, err := svc.GetProgress(sessionID)
	require.NoError(t, err)
	assert.Equal(t, progress.SessionError, snap.State)

	_, err = svc.GetResult(sessionID)
	require.Error(t, err)
	assert.Equal(t, clio.KindUnauthorized, clio.ErrorKindOf(err))
	assert.Empty(t, mem.Firms, "failed session must roll back")
}

func numberFor(i int) string {
	return fmt.Sprintf("M-%05d", i)
}
