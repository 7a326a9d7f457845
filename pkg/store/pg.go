package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// MigrationStatementTimeout bounds individual statements inside the
// migration transaction. Sized for worst-case dataset volume, far beyond
// any interactive default.
const MigrationStatementTimeout = 30 * time.Minute

// PgStore is the PostgreSQL-backed Store.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a store on an existing connection pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Open connects a pool and applies the schema.
func Open(ctx context.Context, connString string) (*PgStore, error) {
	pool, err := pgxpool.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := ApplySchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PgStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PgStore) Close() {
	s.pool.Close()
}

// WithMigrationTx runs fn inside one read-write transaction with the
// extended statement timeout. Any error from fn rolls everything back, so
// a fatal mid-import failure never leaves a half-imported firm.
func (s *PgStore) WithMigrationTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.pool.BeginTxFunc(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}, func(tx pgx.Tx) error {
		timeoutMs := int64(MigrationStatementTimeout / time.Millisecond)
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeoutMs)); err != nil {
			return fmt.Errorf("set statement timeout: %w", err)
		}
		return fn(&pgTx{tx: tx})
	})
}

// pgTx implements Tx on a live pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

// perRecord wraps one row write in a savepoint so a failed insert (bad
// data, unique violation) leaves the enclosing migration transaction
// usable. Savepoint bookkeeping failures mean the transaction itself is
// gone and are escalated to fatal.
func (t *pgTx) perRecord(ctx context.Context, fn func() error) error {
	if _, err := t.tx.Exec(ctx, "SAVEPOINT record_write"); err != nil {
		return Fatal(err)
	}
	if err := fn(); err != nil {
		if _, rbErr := t.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT record_write"); rbErr != nil {
			return Fatal(rbErr)
		}
		return err
	}
	if _, err := t.tx.Exec(ctx, "RELEASE SAVEPOINT record_write"); err != nil {
		return Fatal(err)
	}
	return nil
}

func (t *pgTx) FindFirmByName(ctx context.Context, name string) (*FirmRow, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, name, created_at FROM firms WHERE name = $1`, name)
	var firm FirmRow
	if err := row.Scan(&firm.ID, &firm.Name, &firm.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find firm: %w", err)
	}
	return &firm, nil
}

func (t *pgTx) InsertFirm(ctx context.Context, row *FirmRow) error {
	return t.perRecord(ctx, func() error {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO firms (id, name, created_at) VALUES ($1, $2, $3)`,
			row.ID, row.Name, row.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert firm: %w", err)
		}
		return nil
	})
}

func (t *pgTx) InsertUser(ctx context.Context, row *UserRow) error {
	return t.perRecord(ctx, func() error {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO users (id, firm_id, clio_id, email, first_name, last_name, role, enabled, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			row.ID, row.FirmID, row.ClioID, row.Email, row.FirstName, row.LastName, row.Role, row.Enabled, row.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
}

func (t *pgTx) InsertContact(ctx context.Context, row *ContactRow) error {
	return t.perRecord(ctx, func() error {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO contacts (id, firm_id, clio_id, type, name, email, phone, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			row.ID, row.FirmID, row.ClioID, row.Type, row.Name, row.Email, row.Phone, row.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert contact: %w", err)
		}
		return nil
	})
}

func (t *pgTx) InsertMatter(ctx context.Context, row *MatterRow) error {
	return t.perRecord(ctx, func() error {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO matters (id, firm_id, clio_id, number, description, status, billing_method,
			                      client_id, responsible_user_id, opened_at, closed_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			row.ID, row.FirmID, row.ClioID, row.Number, row.Description, row.Status, row.BillingMethod,
			row.ClientID, row.ResponsibleUserID, row.OpenedAt, row.ClosedAt, row.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert matter: %w", err)
		}
		return nil
	})
}

func (t *pgTx) InsertActivity(ctx context.Context, row *ActivityRow) error {
	return t.perRecord(ctx, func() error {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO activities (id, firm_id, clio_id, type, status, matter_id, user_id, date, quantity, price, note, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			row.ID, row.FirmID, row.ClioID, row.Type, row.Status, row.MatterID, row.UserID,
			row.Date, row.Quantity, row.Price, row.Note, row.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}
		return nil
	})
}

func (t *pgTx) InsertCalendarEntry(ctx context.Context, row *CalendarEntryRow) error {
	return t.perRecord(ctx, func() error {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO calendar_entries (id, firm_id, clio_id, matter_id, type, summary, description, start_at, end_at, all_day, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			row.ID, row.FirmID, row.ClioID, row.MatterID, row.Type, row.Summary, row.Description,
			row.StartAt, row.EndAt, row.AllDay, row.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert calendar entry: %w", err)
		}
		return nil
	})
}

func (t *pgTx) InsertBill(ctx context.Context, row *BillRow) error {
	return t.perRecord(ctx, func() error {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO bills (id, firm_id, clio_id, number, status, matter_id, contact_id, issued_at, due_at, total, balance, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			row.ID, row.FirmID, row.ClioID, row.Number, row.Status, row.MatterID, row.ContactID,
			row.IssuedAt, row.DueAt, row.Total, row.Balance, row.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert bill: %w", err)
		}
		return nil
	})
}

func (t *pgTx) InsertNote(ctx context.Context, row *NoteRow) error {
	return t.perRecord(ctx, func() error {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO notes (id, firm_id, clio_id, matter_id, contact_id, subject, body, date, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			row.ID, row.FirmID, row.ClioID, row.MatterID, row.ContactID, row.Subject, row.Body, row.Date, row.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert note: %w", err)
		}
		return nil
	})
}

func (t *pgTx) ListUsers(ctx context.Context, firmID uuid.UUID) ([]UserRow, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, firm_id, clio_id, email, first_name, last_name, role, enabled, created_at
		 FROM users WHERE firm_id = $1`, firmID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []UserRow
	for rows.Next() {
		var r UserRow
		if err := rows.Scan(&r.ID, &r.FirmID, &r.ClioID, &r.Email, &r.FirstName, &r.LastName, &r.Role, &r.Enabled, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) ListContacts(ctx context.Context, firmID uuid.UUID) ([]ContactRow, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, firm_id, clio_id, type, name, email, phone, created_at
		 FROM contacts WHERE firm_id = $1`, firmID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []ContactRow
	for rows.Next() {
		var r ContactRow
		if err := rows.Scan(&r.ID, &r.FirmID, &r.ClioID, &r.Type, &r.Name, &r.Email, &r.Phone, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) ListMatters(ctx context.Context, firmID uuid.UUID) ([]MatterRow, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, firm_id, clio_id, number, description, status, billing_method,
		        client_id, responsible_user_id, opened_at, closed_at, created_at
		 FROM matters WHERE firm_id = $1`, firmID)
	if err != nil {
		return nil, fmt.Errorf("list matters: %w", err)
	}
	defer rows.Close()

	var out []MatterRow
	for rows.Next() {
		var r MatterRow
		if err := rows.Scan(&r.ID, &r.FirmID, &r.ClioID, &r.Number, &r.Description, &r.Status, &r.BillingMethod,
			&r.ClientID, &r.ResponsibleUserID, &r.OpenedAt, &r.ClosedAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan matter: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) ListActivities(ctx context.Context, firmID uuid.UUID) ([]ActivityRow, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, firm_id, clio_id, type, status, matter_id, user_id, date, quantity, price, note, created_at
		 FROM activities WHERE firm_id = $1`, firmID)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var out []ActivityRow
	for rows.Next() {
		var r ActivityRow
		if err := rows.Scan(&r.ID, &r.FirmID, &r.ClioID, &r.Type, &r.Status, &r.MatterID, &r.UserID,
			&r.Date, &r.Quantity, &r.Price, &r.Note, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) ListCalendarEntries(ctx context.Context, firmID uuid.UUID) ([]CalendarEntryRow, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, firm_id, clio_id, matter_id, type, summary, description, start_at, end_at, all_day, created_at
		 FROM calendar_entries WHERE firm_id = $1`, firmID)
	if err != nil {
		return nil, fmt.Errorf("list calendar entries: %w", err)
	}
	defer rows.Close()

	var out []CalendarEntryRow
	for rows.Next() {
		var r CalendarEntryRow
		if err := rows.Scan(&r.ID, &r.FirmID, &r.ClioID, &r.MatterID, &r.Type, &r.Summary, &r.Description,
			&r.StartAt, &r.EndAt, &r.AllDay, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan calendar entry: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) ListBills(ctx context.Context, firmID uuid.UUID) ([]BillRow, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, firm_id, clio_id, number, status, matter_id, contact_id, issued_at, due_at, total, balance, created_at
		 FROM bills WHERE firm_id = $1`, firmID)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	var out []BillRow
	for rows.Next() {
		var r BillRow
		if err := rows.Scan(&r.ID, &r.FirmID, &r.ClioID, &r.Number, &r.Status, &r.MatterID, &r.ContactID,
			&r.IssuedAt, &r.DueAt, &r.Total, &r.Balance, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) ListNotes(ctx context.Context, firmID uuid.UUID) ([]NoteRow, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, firm_id, clio_id, matter_id, contact_id, subject, body, date, created_at
		 FROM notes WHERE firm_id = $1`, firmID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var out []NoteRow
	for rows.Next() {
		var r NoteRow
		if err := rows.Scan(&r.ID, &r.FirmID, &r.ClioID, &r.MatterID, &r.ContactID, &r.Subject, &r.Body, &r.Date, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) MatterNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM matters WHERE number = $1)`, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check matter number: %w", err)
	}
	return exists, nil
}
