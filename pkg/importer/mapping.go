package importer

import (
	"strings"
	"time"

	"github.com/casefront/clio-migrate/pkg/clio"
	"github.com/casefront/clio-migrate/pkg/store"
)

// This file is the only place external field-shape variance is tolerated.
// Each normalize function reads one raw API record and produces the
// canonical typed shape, or a skip. Unrecognized vocabulary values fall
// back to a documented default per field, never an error.

type skip struct {
	reason SkipReason
	detail string
}

func canon(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func mapRole(s string) store.Role {
	switch canon(s) {
	case "owner", "admin":
		return store.RoleAdmin
	case "attorney":
		return store.RoleAttorney
	case "paralegal", "nonattorney":
		return store.RoleStaff
	default:
		return store.RoleStaff
	}
}

func mapMatterStatus(s string) store.MatterStatus {
	switch canon(s) {
	case "open":
		return store.MatterActive
	case "pending":
		return store.MatterPending
	case "closed":
		return store.MatterClosed
	default:
		return store.MatterActive
	}
}

func mapBillingMethod(s string) store.BillingMethod {
	switch canon(s) {
	case "hourly":
		return store.BillingHourly
	case "flat":
		return store.BillingFlatFee
	case "contingency":
		return store.BillingContingency
	default:
		return store.BillingHourly
	}
}

func mapActivityStatus(s string) store.ActivityStatus {
	switch canon(s) {
	case "billable":
		return store.ActivityUnbilled
	case "non_billable":
		return store.ActivityNonBillable
	case "billed":
		return store.ActivityBilled
	default:
		return store.ActivityUnbilled
	}
}

func mapActivityType(s string) store.ActivityType {
	switch canon(s) {
	case "expenseentry":
		return store.ActivityExpense
	default:
		return store.ActivityTime
	}
}

func mapBillStatus(s string) store.BillStatus {
	switch canon(s) {
	case "draft", "awaiting_approval":
		return store.BillDraft
	case "awaiting_payment":
		return store.BillSent
	case "paid":
		return store.BillPaid
	case "void", "deleted":
		return store.BillVoid
	default:
		return store.BillDraft
	}
}

func mapEventType(s string) store.EventType {
	switch canon(s) {
	case "court_date":
		return store.EventHearing
	case "statute_of_limitations":
		return store.EventDeadline
	case "meeting":
		return store.EventMeeting
	case "to_do":
		return store.EventTask
	default:
		return store.EventOther
	}
}

func mapContactType(s string) store.ContactType {
	if canon(s) == "company" {
		return store.ContactCompany
	}
	return store.ContactPerson
}

// subID returns the external id of a nested reference object, 0 when the
// reference is absent.
func subID(r clio.RawRecord, key string) int64 {
	if sub := r.Sub(key); sub != nil {
		return sub.ID()
	}
	return 0
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type userRecord struct {
	clioID    int64
	email     string
	firstName string
	lastName  string
	role      store.Role
	enabled   bool
}

func normalizeUser(r clio.RawRecord) (userRecord, *skip) {
	id := r.ID()
	if id == 0 {
		return userRecord{}, &skip{reason: SkipNoID}
	}
	email := strings.TrimSpace(r.Str("email"))
	if !strings.Contains(email, "@") {
		return userRecord{}, &skip{reason: SkipNoEmail, detail: "no valid email"}
	}
	first := strings.TrimSpace(r.Str("first_name"))
	last := strings.TrimSpace(r.Str("last_name"))
	if first == "" && last == "" {
		first, last = splitName(r.Str("name"))
	}
	role := r.Str("role")
	if role == "" {
		role = r.Str("subscription_type")
	}
	enabled := true
	if _, ok := r["enabled"]; ok {
		enabled = r.Bool("enabled")
	}
	return userRecord{
		clioID:    id,
		email:     email,
		firstName: first,
		lastName:  last,
		role:      mapRole(role),
		enabled:   enabled,
	}, nil
}

func splitName(name string) (first, last string) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", ""
	}
	if len(fields) == 1 {
		return fields[0], ""
	}
	return strings.Join(fields[:len(fields)-1], " "), fields[len(fields)-1]
}

type contactRecord struct {
	clioID int64
	ctype  store.ContactType
	name   string
	email  string
	phone  string
}

func normalizeContact(r clio.RawRecord) (contactRecord, *skip) {
	id := r.ID()
	if id == 0 {
		return contactRecord{}, &skip{reason: SkipNoID}
	}
	name := strings.TrimSpace(r.Str("name"))
	if name == "" {
		name = strings.TrimSpace(r.Str("first_name") + " " + r.Str("last_name"))
	}
	if name == "" {
		return contactRecord{}, &skip{reason: SkipNoName, detail: "contact has no name"}
	}
	return contactRecord{
		clioID: id,
		ctype:  mapContactType(r.Str("type")),
		name:   name,
		email:  strings.TrimSpace(r.Str("primary_email_address")),
		phone:  strings.TrimSpace(r.Str("primary_phone_number")),
	}, nil
}

type matterRecord struct {
	clioID        int64
	number        string
	description   string
	status        store.MatterStatus
	billingMethod store.BillingMethod
	clientClioID  int64
	userClioID    int64
	openedAt      *time.Time
	closedAt      *time.Time
}

func normalizeMatter(r clio.RawRecord) (matterRecord, *skip) {
	id := r.ID()
	if id == 0 {
		return matterRecord{}, &skip{reason: SkipNoID}
	}
	return matterRecord{
		clioID:        id,
		number:        strings.TrimSpace(r.Str("display_number")),
		description:   strings.TrimSpace(r.Str("description")),
		status:        mapMatterStatus(r.Str("status")),
		billingMethod: mapBillingMethod(r.Str("billing_method")),
		clientClioID:  subID(r, "client"),
		userClioID:    subID(r, "responsible_attorney"),
		openedAt:      optionalTime(r.Time("open_date")),
		closedAt:      optionalTime(r.Time("close_date")),
	}, nil
}

type activityRecord struct {
	clioID       int64
	atype        store.ActivityType
	status       store.ActivityStatus
	matterClioID int64
	userClioID   int64
	date         time.Time
	quantity     float64
	price        float64
	note         string
}

func normalizeActivity(r clio.RawRecord) (activityRecord, *skip) {
	id := r.ID()
	if id == 0 {
		return activityRecord{}, &skip{reason: SkipNoID}
	}
	date := r.Time("date")
	if date.IsZero() {
		return activityRecord{}, &skip{reason: SkipTransform, detail: "missing entry date"}
	}
	return activityRecord{
		clioID:       id,
		atype:        mapActivityType(r.Str("type")),
		status:       mapActivityStatus(r.Str("status")),
		matterClioID: subID(r, "matter"),
		userClioID:   subID(r, "user"),
		date:         date,
		quantity:     r.Float64("quantity"),
		price:        r.Float64("price"),
		note:         r.Str("note"),
	}, nil
}

type calendarRecord struct {
	clioID       int64
	etype        store.EventType
	summary      string
	description  string
	matterClioID int64
	startAt      time.Time
	endAt        time.Time
	allDay       bool
}

func normalizeCalendarEntry(r clio.RawRecord) (calendarRecord, *skip) {
	id := r.ID()
	if id == 0 {
		return calendarRecord{}, &skip{reason: SkipNoID}
	}
	start := r.Time("start_at")
	if start.IsZero() {
		return calendarRecord{}, &skip{reason: SkipTransform, detail: "missing start time"}
	}
	end := r.Time("end_at")
	if end.IsZero() {
		end = start
	}
	return calendarRecord{
		clioID:       id,
		etype:        mapEventType(r.Str("type")),
		summary:      strings.TrimSpace(r.Str("summary")),
		description:  strings.TrimSpace(r.Str("description")),
		matterClioID: subID(r, "matter"),
		startAt:      start,
		endAt:        end,
		allDay:       r.Bool("all_day"),
	}, nil
}

type billRecord struct {
	clioID        int64
	number        string
	status        store.BillStatus
	matterClioID  int64
	contactClioID int64
	issuedAt      *time.Time
	dueAt         *time.Time
	total         float64
	balance       float64
}

func normalizeBill(r clio.RawRecord) (billRecord, *skip) {
	id := r.ID()
	if id == 0 {
		return billRecord{}, &skip{reason: SkipNoID}
	}
	return billRecord{
		clioID:        id,
		number:        strings.TrimSpace(r.Str("number")),
		status:        mapBillStatus(r.Str("state")),
		matterClioID:  subID(r, "matter"),
		contactClioID: subID(r, "client"),
		issuedAt:      optionalTime(r.Time("issued_at")),
		dueAt:         optionalTime(r.Time("due_at")),
		total:         r.Float64("total"),
		balance:       r.Float64("balance"),
	}, nil
}

type noteRecord struct {
	// clioID may be zero: some note sub-records carry no id of their own.
	clioID        int64
	subject       string
	body          string
	matterClioID  int64
	contactClioID int64
	date          *time.Time
}

func normalizeNote(r clio.RawRecord) (noteRecord, *skip) {
	subject := strings.TrimSpace(r.Str("subject"))
	body := strings.TrimSpace(r.Str("detail"))
	if subject == "" && body == "" {
		return noteRecord{}, &skip{reason: SkipTransform, detail: "empty note"}
	}
	return noteRecord{
		clioID:        r.ID(),
		subject:       subject,
		body:          body,
		matterClioID:  subID(r, "matter"),
		contactClioID: subID(r, "contact"),
		date:          optionalTime(r.Time("date")),
	}, nil
}
