// Package store persists imported firm data in PostgreSQL. The importer
// only ever talks to the Tx interface inside one long-running migration
// transaction; an in-memory implementation backs unit tests.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role is the internal user role vocabulary.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleAttorney Role = "attorney"
	RoleStaff    Role = "staff"
)

// MatterStatus is the internal matter status vocabulary.
type MatterStatus string

const (
	MatterActive  MatterStatus = "active"
	MatterPending MatterStatus = "pending"
	MatterClosed  MatterStatus = "closed"
)

// BillingMethod is the internal matter billing vocabulary.
type BillingMethod string

const (
	BillingHourly      BillingMethod = "hourly"
	BillingFlatFee     BillingMethod = "flat_fee"
	BillingContingency BillingMethod = "contingency"
)

// ActivityType distinguishes time entries from expenses.
type ActivityType string

const (
	ActivityTime    ActivityType = "time"
	ActivityExpense ActivityType = "expense"
)

// ActivityStatus is the internal billing-status vocabulary for activities.
type ActivityStatus string

const (
	ActivityUnbilled    ActivityStatus = "unbilled"
	ActivityBilled      ActivityStatus = "billed"
	ActivityNonBillable ActivityStatus = "nonbillable"
)

// BillStatus is the internal bill lifecycle vocabulary.
type BillStatus string

const (
	BillDraft BillStatus = "draft"
	BillSent  BillStatus = "sent"
	BillPaid  BillStatus = "paid"
	BillVoid  BillStatus = "void"
)

// EventType is the internal calendar-entry vocabulary.
type EventType string

const (
	EventHearing  EventType = "hearing"
	EventDeadline EventType = "deadline"
	EventMeeting  EventType = "meeting"
	EventTask     EventType = "task"
	EventOther    EventType = "other"
)

// ContactType mirrors the external person/company distinction.
type ContactType string

const (
	ContactPerson  ContactType = "person"
	ContactCompany ContactType = "company"
)

// FirmRow is the tenant every other row hangs off.
type FirmRow struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// UserRow is a firm member. ClioID is retained so re-runs can resolve
// previously imported users without natural-key guessing.
type UserRow struct {
	ID        uuid.UUID
	FirmID    uuid.UUID
	ClioID    int64
	Email     string
	FirstName string
	LastName  string
	Role      Role
	Enabled   bool
	CreatedAt time.Time
}

// ContactRow is a client or other party.
type ContactRow struct {
	ID        uuid.UUID
	FirmID    uuid.UUID
	ClioID    int64
	Type      ContactType
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

// MatterRow is one legal matter.
type MatterRow struct {
	ID                uuid.UUID
	FirmID            uuid.UUID
	ClioID            int64
	Number            string
	Description       string
	Status            MatterStatus
	BillingMethod     BillingMethod
	ClientID          *uuid.UUID
	ResponsibleUserID *uuid.UUID
	OpenedAt          *time.Time
	ClosedAt          *time.Time
	CreatedAt         time.Time
}

// ActivityRow is one time or expense entry.
type ActivityRow struct {
	ID        uuid.UUID
	FirmID    uuid.UUID
	ClioID    int64
	Type      ActivityType
	Status    ActivityStatus
	MatterID  *uuid.UUID
	UserID    *uuid.UUID
	Date      time.Time
	Quantity  float64 // hours for time entries, unit count for expenses
	Price     float64
	Note      string
	CreatedAt time.Time
}

// CalendarEntryRow is one calendar event.
type CalendarEntryRow struct {
	ID          uuid.UUID
	FirmID      uuid.UUID
	ClioID      int64
	MatterID    *uuid.UUID
	Type        EventType
	Summary     string
	Description string
	StartAt     time.Time
	EndAt       time.Time
	AllDay      bool
	CreatedAt   time.Time
}

// BillRow is one invoice.
type BillRow struct {
	ID        uuid.UUID
	FirmID    uuid.UUID
	ClioID    int64
	Number    string
	Status    BillStatus
	MatterID  *uuid.UUID
	ContactID *uuid.UUID
	IssuedAt  *time.Time
	DueAt     *time.Time
	Total     float64
	Balance   float64
	CreatedAt time.Time
}

// NoteRow is a note attached to a matter or contact. ClioID may be zero:
// some note sub-records carry no identifier of their own.
type NoteRow struct {
	ID        uuid.UUID
	FirmID    uuid.UUID
	ClioID    int64
	MatterID  *uuid.UUID
	ContactID *uuid.UUID
	Subject   string
	Body      string
	Date      *time.Time
	CreatedAt time.Time
}

// Tx is the write surface the importer uses inside the migration
// transaction. List methods exist so re-runs can seed the identity
// resolver from previously imported rows.
type Tx interface {
	FindFirmByName(ctx context.Context, name string) (*FirmRow, error)
	InsertFirm(ctx context.Context, row *FirmRow) error

	InsertUser(ctx context.Context, row *UserRow) error
	InsertContact(ctx context.Context, row *ContactRow) error
	InsertMatter(ctx context.Context, row *MatterRow) error
	InsertActivity(ctx context.Context, row *ActivityRow) error
	InsertCalendarEntry(ctx context.Context, row *CalendarEntryRow) error
	InsertBill(ctx context.Context, row *BillRow) error
	InsertNote(ctx context.Context, row *NoteRow) error

	ListUsers(ctx context.Context, firmID uuid.UUID) ([]UserRow, error)
	ListContacts(ctx context.Context, firmID uuid.UUID) ([]ContactRow, error)
	ListMatters(ctx context.Context, firmID uuid.UUID) ([]MatterRow, error)
	ListActivities(ctx context.Context, firmID uuid.UUID) ([]ActivityRow, error)
	ListCalendarEntries(ctx context.Context, firmID uuid.UUID) ([]CalendarEntryRow, error)
	ListBills(ctx context.Context, firmID uuid.UUID) ([]BillRow, error)
	ListNotes(ctx context.Context, firmID uuid.UUID) ([]NoteRow, error)

	// MatterNumberExists checks number uniqueness across all firms; matter
	// numbers are globally unique display identifiers.
	MatterNumberExists(ctx context.Context, number string) (bool, error)
}

// Store opens the migration transaction. The whole import for one session
// runs inside a single call so a fatal failure never leaves a
// half-imported firm behind.
type Store interface {
	WithMigrationTx(ctx context.Context, fn func(tx Tx) error) error
}
