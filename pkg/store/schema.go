package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// schema is the DDL for the imported-data tables. Applied idempotently at
// daemon startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS firms (
		id uuid PRIMARY KEY,
		name text NOT NULL UNIQUE,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id uuid PRIMARY KEY,
		firm_id uuid NOT NULL REFERENCES firms(id),
		clio_id bigint,
		email text NOT NULL,
		first_name text NOT NULL DEFAULT '',
		last_name text NOT NULL DEFAULT '',
		role text NOT NULL,
		enabled boolean NOT NULL DEFAULT true,
		created_at timestamptz NOT NULL DEFAULT now(),
		UNIQUE (firm_id, email)
	)`,
	`CREATE INDEX IF NOT EXISTS users_clio_id_idx ON users (firm_id, clio_id)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id uuid PRIMARY KEY,
		firm_id uuid NOT NULL REFERENCES firms(id),
		clio_id bigint,
		type text NOT NULL,
		name text NOT NULL,
		email text NOT NULL DEFAULT '',
		phone text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS contacts_clio_id_idx ON contacts (firm_id, clio_id)`,
	`CREATE TABLE IF NOT EXISTS matters (
		id uuid PRIMARY KEY,
		firm_id uuid NOT NULL REFERENCES firms(id),
		clio_id bigint,
		number text NOT NULL UNIQUE,
		description text NOT NULL DEFAULT '',
		status text NOT NULL,
		billing_method text NOT NULL,
		client_id uuid REFERENCES contacts(id),
		responsible_user_id uuid REFERENCES users(id),
		opened_at timestamptz,
		closed_at timestamptz,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS matters_clio_id_idx ON matters (firm_id, clio_id)`,
	`CREATE TABLE IF NOT EXISTS activities (
		id uuid PRIMARY KEY,
		firm_id uuid NOT NULL REFERENCES firms(id),
		clio_id bigint,
		type text NOT NULL,
		status text NOT NULL,
		matter_id uuid REFERENCES matters(id),
		user_id uuid REFERENCES users(id),
		date timestamptz NOT NULL,
		quantity double precision NOT NULL DEFAULT 0,
		price double precision NOT NULL DEFAULT 0,
		note text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS activities_clio_id_idx ON activities (firm_id, clio_id)`,
	`CREATE TABLE IF NOT EXISTS calendar_entries (
		id uuid PRIMARY KEY,
		firm_id uuid NOT NULL REFERENCES firms(id),
		clio_id bigint,
		matter_id uuid REFERENCES matters(id),
		type text NOT NULL,
		summary text NOT NULL DEFAULT '',
		description text NOT NULL DEFAULT '',
		start_at timestamptz NOT NULL,
		end_at timestamptz NOT NULL,
		all_day boolean NOT NULL DEFAULT false,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS calendar_entries_clio_id_idx ON calendar_entries (firm_id, clio_id)`,
	`CREATE TABLE IF NOT EXISTS bills (
		id uuid PRIMARY KEY,
		firm_id uuid NOT NULL REFERENCES firms(id),
		clio_id bigint,
		number text NOT NULL,
		status text NOT NULL,
		matter_id uuid REFERENCES matters(id),
		contact_id uuid REFERENCES contacts(id),
		issued_at timestamptz,
		due_at timestamptz,
		total double precision NOT NULL DEFAULT 0,
		balance double precision NOT NULL DEFAULT 0,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS bills_clio_id_idx ON bills (firm_id, clio_id)`,
	`CREATE TABLE IF NOT EXISTS notes (
		id uuid PRIMARY KEY,
		firm_id uuid NOT NULL REFERENCES firms(id),
		clio_id bigint,
		matter_id uuid REFERENCES matters(id),
		contact_id uuid REFERENCES contacts(id),
		subject text NOT NULL DEFAULT '',
		body text NOT NULL DEFAULT '',
		date timestamptz,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS notes_clio_id_idx ON notes (firm_id, clio_id)`,
}

// ApplySchema creates the imported-data tables if they do not exist.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
