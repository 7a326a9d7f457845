//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/casefront/clio-migrate/pkg/connstore"
	"github.com/casefront/clio-migrate/pkg/store"
)

// setupPostgres starts a Postgres container and returns its connection string.
func setupPostgres(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "migrate",
			"POSTGRES_PASSWORD": "migrate",
			"POSTGRES_DB":       "migrate",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get Postgres host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get Postgres port: %v", err)
	}

	connString := fmt.Sprintf("postgres://migrate:migrate@%s:%s/migrate?sslmode=disable", host, port.Port())

	cleanup := func() {
		pgContainer.Terminate(ctx)
	}
	return connString, cleanup
}

// setupRedisStore starts a Redis container and returns a client.
func setupRedisStore(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}
	return client, cleanup
}

func TestPgStore_Integration_MigrationTx(t *testing.T) {
	connString, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	pg, err := store.Open(ctx, connString)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer pg.Close()

	firmID := uuid.New()
	userID := uuid.New()

	err = pg.WithMigrationTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertFirm(ctx, &store.FirmRow{ID: firmID, Name: "Integration Firm"}); err != nil {
			return err
		}
		if err := tx.InsertUser(ctx, &store.UserRow{
			ID:        userID,
			FirmID:    firmID,
			ClioID:    1,
			Email:     "ada@example.com",
			FirstName: "Ada",
			LastName:  "Lovelace",
			Role:      store.RoleAttorney,
			Enabled:   true,
		}); err != nil {
			return err
		}
		return tx.InsertMatter(ctx, &store.MatterRow{
			ID:     uuid.New(),
			FirmID: firmID,
			ClioID: 21,
			Number: "00001-Integration",
			Status: store.MatterActive,
		})
	})
	if err != nil {
		t.Fatalf("WithMigrationTx() error = %v", err)
	}

	err = pg.WithMigrationTx(ctx, func(tx store.Tx) error {
		firm, err := tx.FindFirmByName(ctx, "Integration Firm")
		if err != nil {
			return err
		}
		if firm == nil || firm.ID != firmID {
			t.Errorf("FindFirmByName = %+v, want ID %s", firm, firmID)
		}

		users, err := tx.ListUsers(ctx, firmID)
		if err != nil {
			return err
		}
		if len(users) != 1 || users[0].Email != "ada@example.com" {
			t.Errorf("ListUsers = %+v, want one ada@example.com", users)
		}

		exists, err := tx.MatterNumberExists(ctx, "00001-Integration")
		if err != nil {
			return err
		}
		if !exists {
			t.Error("MatterNumberExists = false, want true")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read transaction error = %v", err)
	}
}

func TestPgStore_Integration_SavepointContainsRecordFailure(t *testing.T) {
	connString, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	pg, err := store.Open(ctx, connString)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer pg.Close()

	firmID := uuid.New()

	err = pg.WithMigrationTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertFirm(ctx, &store.FirmRow{ID: firmID, Name: "Savepoint Firm"}); err != nil {
			return err
		}
		if err := tx.InsertUser(ctx, &store.UserRow{
			ID: uuid.New(), FirmID: firmID, ClioID: 1,
			Email: "dup@example.com", FirstName: "First",
		}); err != nil {
			return err
		}

		// Duplicate (firm_id, email) violates the unique constraint. The
		// savepoint must absorb it without poisoning the transaction.
		dupErr := tx.InsertUser(ctx, &store.UserRow{
			ID: uuid.New(), FirmID: firmID, ClioID: 2,
			Email: "dup@example.com", FirstName: "Second",
		})
		if dupErr == nil {
			t.Fatal("duplicate insert succeeded, want unique violation")
		}
		if store.IsFatal(dupErr) {
			t.Fatalf("duplicate insert classified fatal: %v", dupErr)
		}

		// The transaction stays usable after the contained failure.
		return tx.InsertUser(ctx, &store.UserRow{
			ID: uuid.New(), FirmID: firmID, ClioID: 3,
			Email: "ok@example.com", FirstName: "Third",
		})
	})
	if err != nil {
		t.Fatalf("WithMigrationTx() error = %v", err)
	}

	err = pg.WithMigrationTx(ctx, func(tx store.Tx) error {
		users, err := tx.ListUsers(ctx, firmID)
		if err != nil {
			return err
		}
		if len(users) != 2 {
			t.Errorf("len(users) = %d, want 2 (duplicate rolled back)", len(users))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read transaction error = %v", err)
	}
}

func TestRedisConnStore_Integration(t *testing.T) {
	client, cleanup := setupRedisStore(t)
	defer cleanup()

	ctx := context.Background()
	cs := connstore.NewRedis(client, time.Hour)

	creds := connstore.Credentials{
		AccessToken:  "tok-integration",
		RefreshToken: "refresh-integration",
		CreatedAt:    time.Now().UTC(),
	}
	if err := cs.Put(ctx, "conn-1", creds); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := cs.Get(ctx, "conn-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AccessToken != "tok-integration" {
		t.Errorf("AccessToken = %q, want %q", got.AccessToken, "tok-integration")
	}

	ttl := client.TTL(ctx, "clio:connection:conn-1").Val()
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("key TTL = %v, want within (0, 1h]", ttl)
	}

	if err := cs.Delete(ctx, "conn-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := cs.Get(ctx, "conn-1"); err == nil {
		t.Error("Get() after delete succeeded, want connstore.ErrNotFound")
	}
}
