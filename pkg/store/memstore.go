package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrInjected is returned by a MemStore configured to fail, for tests
// exercising fatal-error rollback.
var ErrInjected = errors.New("injected store failure")

// MemStore is an in-memory Store used by unit tests and the library-usage
// example. WithMigrationTx snapshots state up front and restores it when
// fn fails, mirroring the transactional guarantee of the real store.
type MemStore struct {
	Firms           []FirmRow
	Users           []UserRow
	Contacts        []ContactRow
	Matters         []MatterRow
	Activities      []ActivityRow
	CalendarEntries []CalendarEntryRow
	Bills           []BillRow
	Notes           []NoteRow

	// FailAfterInserts makes every insert past the Nth fail with
	// ErrInjected. Negative disables injection.
	FailAfterInserts int

	inserts int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{FailAfterInserts: -1}
}

// WithMigrationTx implements Store.
func (m *MemStore) WithMigrationTx(ctx context.Context, fn func(tx Tx) error) error {
	snapshot := m.copy()
	if err := fn(&memTx{store: m}); err != nil {
		*m = *snapshot
		return err
	}
	return nil
}

func (m *MemStore) copy() *MemStore {
	c := *m
	c.Firms = append([]FirmRow(nil), m.Firms...)
	c.Users = append([]UserRow(nil), m.Users...)
	c.Contacts = append([]ContactRow(nil), m.Contacts...)
	c.Matters = append([]MatterRow(nil), m.Matters...)
	c.Activities = append([]ActivityRow(nil), m.Activities...)
	c.CalendarEntries = append([]CalendarEntryRow(nil), m.CalendarEntries...)
	c.Bills = append([]BillRow(nil), m.Bills...)
	c.Notes = append([]NoteRow(nil), m.Notes...)
	return &c
}

func (m *MemStore) checkInject() error {
	if m.FailAfterInserts >= 0 && m.inserts >= m.FailAfterInserts {
		return ErrInjected
	}
	m.inserts++
	return nil
}

// memTx implements Tx directly on the MemStore.
type memTx struct {
	store *MemStore
}

func (t *memTx) FindFirmByName(ctx context.Context, name string) (*FirmRow, error) {
	for i := range t.store.Firms {
		if t.store.Firms[i].Name == name {
			firm := t.store.Firms[i]
			return &firm, nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertFirm(ctx context.Context, row *FirmRow) error {
	if err := t.store.checkInject(); err != nil {
		return err
	}
	t.store.Firms = append(t.store.Firms, *row)
	return nil
}

func (t *memTx) InsertUser(ctx context.Context, row *UserRow) error {
	if err := t.store.checkInject(); err != nil {
		return err
	}
	t.store.Users = append(t.store.Users, *row)
	return nil
}

func (t *memTx) InsertContact(ctx context.Context, row *ContactRow) error {
	if err := t.store.checkInject(); err != nil {
		return err
	}
	t.store.Contacts = append(t.store.Contacts, *row)
	return nil
}

func (t *memTx) InsertMatter(ctx context.Context, row *MatterRow) error {
	if err := t.store.checkInject(); err != nil {
		return err
	}
	t.store.Matters = append(t.store.Matters, *row)
	return nil
}

func (t *memTx) InsertActivity(ctx context.Context, row *ActivityRow) error {
	if err := t.store.checkInject(); err != nil {
		return err
	}
	t.store.Activities = append(t.store.Activities, *row)
	return nil
}

func (t *memTx) InsertCalendarEntry(ctx context.Context, row *CalendarEntryRow) error {
	if err := t.store.checkInject(); err != nil {
		return err
	}
	t.store.CalendarEntries = append(t.store.CalendarEntries, *row)
	return nil
}

func (t *memTx) InsertBill(ctx context.Context, row *BillRow) error {
	if err := t.store.checkInject(); err != nil {
		return err
	}
	t.store.Bills = append(t.store.Bills, *row)
	return nil
}

func (t *memTx) InsertNote(ctx context.Context, row *NoteRow) error {
	if err := t.store.checkInject(); err != nil {
		return err
	}
	t.store.Notes = append(t.store.Notes, *row)
	return nil
}

func (t *memTx) ListUsers(ctx context.Context, firmID uuid.UUID) ([]UserRow, error) {
	var out []UserRow
	for _, r := range t.store.Users {
		if r.FirmID == firmID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) ListContacts(ctx context.Context, firmID uuid.UUID) ([]ContactRow, error) {
	var out []ContactRow
	for _, r := range t.store.Contacts {
		if r.FirmID == firmID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) ListMatters(ctx context.Context, firmID uuid.UUID) ([]MatterRow, error) {
	var out []MatterRow
	for _, r := range t.store.Matters {
		if r.FirmID == firmID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) ListActivities(ctx context.Context, firmID uuid.UUID) ([]ActivityRow, error) {
	var out []ActivityRow
	for _, r := range t.store.Activities {
		if r.FirmID == firmID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) ListCalendarEntries(ctx context.Context, firmID uuid.UUID) ([]CalendarEntryRow, error) {
	var out []CalendarEntryRow
	for _, r := range t.store.CalendarEntries {
		if r.FirmID == firmID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) ListBills(ctx context.Context, firmID uuid.UUID) ([]BillRow, error) {
	var out []BillRow
	for _, r := range t.store.Bills {
		if r.FirmID == firmID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) ListNotes(ctx context.Context, firmID uuid.UUID) ([]NoteRow, error) {
	var out []NoteRow
	for _, r := range t.store.Notes {
		if r.FirmID == firmID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) MatterNumberExists(ctx context.Context, number string) (bool, error) {
	for _, r := range t.store.Matters {
		if r.Number == number {
			return true, nil
		}
	}
	return false, nil
}
