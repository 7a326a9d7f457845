// Package importer orchestrates one migration session: it drains the
// partitioned fetch stream per entity kind, normalizes raw records,
// resolves identities against already-imported data and writes rows in
// strict dependency order inside a single store transaction.
package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/casefront/clio-migrate/pkg/batch"
	"github.com/casefront/clio-migrate/pkg/clio"
	"github.com/casefront/clio-migrate/pkg/identity"
	"github.com/casefront/clio-migrate/pkg/logging"
	"github.com/casefront/clio-migrate/pkg/paginate"
	"github.com/casefront/clio-migrate/pkg/progress"
	"github.com/casefront/clio-migrate/pkg/store"
)

var recordsImported = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "migration_records_total",
	Help: "Records processed by the importer, by kind and outcome",
}, []string{"kind", "outcome"})

// Fetcher produces the merged, deduplicated record stream for one entity
// kind. The production implementation runs partition plans against the
// live API; tests substitute canned streams.
type Fetcher interface {
	Fetch(ctx context.Context, kind clio.Kind, onProgress batch.Progress) (batch.Result, error)
}

// ClioFetcher fetches through the partitioned batch runner.
type ClioFetcher struct {
	runner *batch.Runner
	now    func() time.Time
}

// NewClioFetcher builds the production fetcher on a list client.
func NewClioFetcher(client paginate.ListClient) *ClioFetcher {
	return &ClioFetcher{runner: batch.NewRunner(client), now: time.Now}
}

func (f *ClioFetcher) Fetch(ctx context.Context, kind clio.Kind, onProgress batch.Progress) (batch.Result, error) {
	return f.runner.Run(ctx, batch.PlanFor(kind, f.now()), onProgress)
}

// Reporter receives step transitions and log lines from a running import.
// The migration service binds this to one tracker session.
type Reporter interface {
	Update(step string, status progress.StepStatus, count int, msg string)
	Log(msg string)
}

// NopReporter discards all progress events.
type NopReporter struct{}

func (NopReporter) Update(string, progress.StepStatus, int, string) {}
func (NopReporter) Log(string)                                      {}

// StepFirm is the step name for firm resolution; entity steps are named
// by their kind.
const StepFirm = "firm"

// Steps lists every step of a full import in execution order.
func Steps() []string {
	steps := make([]string, 0, len(clio.AllKinds)+1)
	steps = append(steps, StepFirm)
	for _, k := range clio.AllKinds {
		steps = append(steps, string(k))
	}
	return steps
}

// Config selects what one session imports.
type Config struct {
	// FirmName is the target firm, found or created by name.
	FirmName string

	// Kinds toggles entity kinds; nil imports everything. Disabling a
	// kind that later kinds depend on is the caller's responsibility.
	Kinds map[clio.Kind]bool

	// Now overrides the clock in tests.
	Now func() time.Time
}

func (c Config) enabled(kind clio.Kind) bool {
	if c.Kinds == nil {
		return true
	}
	return c.Kinds[kind]
}

// Importer runs import sessions. Safe to share across sessions; all
// per-session state lives in the run.
type Importer struct {
	fetcher Fetcher
	store   store.Store
	logger  zerolog.Logger
}

// New creates an importer.
func New(fetcher Fetcher, st store.Store) *Importer {
	return &Importer{
		fetcher: fetcher,
		store:   st,
		logger:  logging.NewLogger("importer"),
	}
}

// Run executes one full import session inside a single migration
// transaction. Per-record problems degrade to warnings in the result;
// only fatal store errors and an unusable token abort, rolling the whole
// transaction back. The returned result is valid even on error, for log
// surfacing.
func (imp *Importer) Run(ctx context.Context, cfg Config, rep Reporter) (*Result, error) {
	if rep == nil {
		rep = NopReporter{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	result := newResult(now())

	err := imp.store.WithMigrationTx(ctx, func(tx store.Tx) error {
		run := &sessionRun{
			imp:    imp,
			tx:     tx,
			res:    identity.NewResolver(),
			result: result,
			cfg:    cfg,
			rep:    rep,
			now:    now,
		}
		return run.execute(ctx)
	})
	result.CompletedAt = now()
	if err != nil {
		return result, err
	}
	return result, nil
}

// sessionRun is the per-session state threaded through the stage loop.
type sessionRun struct {
	imp    *Importer
	tx     store.Tx
	res    *identity.Resolver
	result *Result
	cfg    Config
	rep    Reporter
	now    func() time.Time

	firmID     uuid.UUID
	firmPrefix string
}

func (s *sessionRun) execute(ctx context.Context) error {
	if err := s.resolveFirm(ctx); err != nil {
		s.rep.Update(StepFirm, progress.StepError, 0, err.Error())
		return err
	}

	type stage struct {
		kind   clio.Kind
		seed   func(context.Context) error
		handle func(context.Context, clio.RawRecord) error
	}
	stages := []stage{
		{clio.KindUser, s.seedUsers, s.importUser},
		{clio.KindContact, s.seedContacts, s.importContact},
		{clio.KindMatter, s.seedMatters, s.importMatter},
		{clio.KindActivity, s.seedActivities, s.importActivity},
		{clio.KindBill, s.seedBills, s.importBill},
		{clio.KindCalendarEntry, s.seedCalendarEntries, s.importCalendarEntry},
		{clio.KindNote, s.seedNotes, s.importNote},
	}
	for _, st := range stages {
		if err := s.runStage(ctx, st.kind, st.seed, st.handle); err != nil {
			return err
		}
	}
	return nil
}

// resolveFirm finds or creates the target firm. A firm insert failure is
// always fatal; nothing can be imported without the tenant row.
func (s *sessionRun) resolveFirm(ctx context.Context) error {
	s.rep.Update(StepFirm, progress.StepRunning, 0, "")

	name := strings.TrimSpace(s.cfg.FirmName)
	if name == "" {
		return fmt.Errorf("firm name is required")
	}
	s.firmPrefix = firmPrefix(name)

	existing, err := s.tx.FindFirmByName(ctx, name)
	if err != nil {
		return err
	}
	if existing != nil {
		s.firmID = existing.ID
		s.result.FirmID = existing.ID
		s.rep.Update(StepFirm, progress.StepDone, 1, "using existing firm")
		return nil
	}

	row := &store.FirmRow{ID: uuid.New(), Name: name, CreatedAt: s.now()}
	if err := s.tx.InsertFirm(ctx, row); err != nil {
		return err
	}
	s.firmID = row.ID
	s.result.FirmID = row.ID
	s.result.FirmCreated = true
	s.rep.Update(StepFirm, progress.StepDone, 1, "created firm")
	return nil
}

// runStage executes one entity stage: seed the resolver from rows already
// in the store, fetch the merged record stream, then transform and write
// each record. Fetch errors abort (the runner only fails on an unusable
// token or a dead context); everything per-record degrades to warnings
// unless the store reports a fatal error.
func (s *sessionRun) runStage(ctx context.Context, kind clio.Kind, seed func(context.Context) error, handle func(context.Context, clio.RawRecord) error) error {
	step := string(kind)
	if !s.cfg.enabled(kind) {
		s.rep.Update(step, progress.StepSkipped, 0, "disabled by request")
		return nil
	}
	s.rep.Update(step, progress.StepRunning, 0, "")

	if err := seed(ctx); err != nil {
		s.rep.Update(step, progress.StepError, 0, err.Error())
		return err
	}

	fetched, err := s.imp.fetcher.Fetch(ctx, kind, func(label string, cumulative int) {
		s.rep.Update(step, progress.StepRunning, cumulative, "fetched "+label)
	})
	if err != nil {
		s.rep.Update(step, progress.StepError, 0, err.Error())
		return err
	}
	s.result.FetchWarnings = append(s.result.FetchWarnings, fetched.Warnings...)
	for _, w := range fetched.Warnings {
		s.rep.Log(w)
	}

	for _, raw := range fetched.Records {
		if err := handle(ctx, raw); err != nil {
			s.rep.Update(step, progress.StepError, 0, err.Error())
			return err
		}
	}

	c := s.result.Counts[kind]
	recordsImported.WithLabelValues(step, "created").Add(float64(c.Created))
	recordsImported.WithLabelValues(step, "existing").Add(float64(c.Existing))
	recordsImported.WithLabelValues(step, "skipped").Add(float64(c.Skipped))
	s.rep.Update(step, progress.StepDone, c.Created+c.Existing,
		fmt.Sprintf("%d created, %d existing, %d skipped", c.Created, c.Existing, c.Skipped))
	s.imp.logger.Info().
		Str("kind", step).
		Int("created", c.Created).
		Int("existing", c.Existing).
		Int("skipped", c.Skipped).
		Msg("Stage complete")
	return nil
}

// writeRow runs one insert. Fatal store errors propagate; anything else
// becomes a skip warning.
func (s *sessionRun) writeRow(kind clio.Kind, clioID int64, err error) (ok bool, fatal error) {
	if err == nil {
		return true, nil
	}
	if store.IsFatal(err) {
		return false, err
	}
	s.result.warn(kind, clioID, SkipWriteFailed, err.Error())
	return false, nil
}

func (s *sessionRun) seedUsers(ctx context.Context) error {
	rows, err := s.tx.ListUsers(ctx, s.firmID)
	if err != nil {
		return err
	}
	for _, r := range rows {
		s.res.Register(clio.KindUser, r.ID, identity.ClioKey(r.ClioID), identity.EmailKey(r.Email))
	}
	return nil
}

func (s *sessionRun) importUser(ctx context.Context, raw clio.RawRecord) error {
	rec, sk := normalizeUser(raw)
	if sk != nil {
		s.result.warn(clio.KindUser, raw.ID(), sk.reason, sk.detail)
		return nil
	}
	keys := []string{identity.ClioKey(rec.clioID), identity.EmailKey(rec.email)}
	if id, found := s.res.Resolve(clio.KindUser, keys...); found {
		s.res.Register(clio.KindUser, id, keys...)
		s.result.existing(clio.KindUser)
		return nil
	}

	row := &store.UserRow{
		ID:        uuid.New(),
		FirmID:    s.firmID,
		ClioID:    rec.clioID,
		Email:     rec.email,
		FirstName: rec.firstName,
		LastName:  rec.lastName,
		Role:      rec.role,
		Enabled:   rec.enabled,
		CreatedAt: s.now(),
	}
	ok, fatal := s.writeRow(clio.KindUser, rec.clioID, s.tx.InsertUser(ctx, row))
	if fatal != nil {
		return fatal
	}
	if ok {
		s.res.Register(clio.KindUser, row.ID, keys...)
		s.result.created(clio.KindUser)
	}
	return nil
}

func (s *sessionRun) seedContacts(ctx context.Context) error {
	rows, err := s.tx.ListContacts(ctx, s.firmID)
	if err != nil {
		return err
	}
	for _, r := range rows {
		s.res.Register(clio.KindContact, r.ID,
			identity.ClioKey(r.ClioID), identity.EmailKey(r.Email), identity.NameKey(r.Name))
	}
	return nil
}

func (s *sessionRun) importContact(ctx context.Context, raw clio.RawRecord) error {
	rec, sk := normalizeContact(raw)
	if sk != nil {
		s.result.warn(clio.KindContact, raw.ID(), sk.reason, sk.detail)
		return nil
	}
	keys := []string{identity.ClioKey(rec.clioID), identity.EmailKey(rec.email), identity.NameKey(rec.name)}
	if id, found := s.res.Resolve(clio.KindContact, keys...); found {
		s.res.Register(clio.KindContact, id, keys...)
		s.result.existing(clio.KindContact)
		return nil
	}

	row := &store.ContactRow{
		ID:        uuid.New(),
		FirmID:    s.firmID,
		ClioID:    rec.clioID,
		Type:      rec.ctype,
		Name:      rec.name,
		Email:     rec.email,
		Phone:     rec.phone,
		CreatedAt: s.now(),
	}
	ok, fatal := s.writeRow(clio.KindContact, rec.clioID, s.tx.InsertContact(ctx, row))
	if fatal != nil {
		return fatal
	}
	if ok {
		s.res.Register(clio.KindContact, row.ID, keys...)
		s.result.created(clio.KindContact)
	}
	return nil
}

func (s *sessionRun) seedMatters(ctx context.Context) error {
	rows, err := s.tx.ListMatters(ctx, s.firmID)
	if err != nil {
		return err
	}
	for _, r := range rows {
		s.res.Register(clio.KindMatter, r.ID, identity.ClioKey(r.ClioID), identity.NumberKey(r.Number))
	}
	return nil
}

func (s *sessionRun) importMatter(ctx context.Context, raw clio.RawRecord) error {
	rec, sk := normalizeMatter(raw)
	if sk != nil {
		s.result.warn(clio.KindMatter, raw.ID(), sk.reason, sk.detail)
		return nil
	}
	keys := []string{identity.ClioKey(rec.clioID), identity.NumberKey(rec.number)}
	if id, found := s.res.Resolve(clio.KindMatter, keys...); found {
		s.res.Register(clio.KindMatter, id, keys...)
		s.result.existing(clio.KindMatter)
		return nil
	}

	// The client and responsible-attorney links are best effort: a matter
	// without a resolvable client is still worth importing.
	clientID := s.resolveParent(clio.KindContact, rec.clientClioID, clio.KindMatter, rec.clioID, "client")
	userID := s.resolveParent(clio.KindUser, rec.userClioID, clio.KindMatter, rec.clioID, "responsible_attorney")

	base := rec.number
	if base == "" {
		// The short random suffix keeps two import targets from fighting
		// over the same synthesized number before the collision chain runs.
		base = fmt.Sprintf("CLIO-%d-%s", rec.clioID, uuid.NewString()[:4])
	}
	number, err := s.uniqueMatterNumber(ctx, base)
	if err != nil {
		return err
	}

	row := &store.MatterRow{
		ID:                uuid.New(),
		FirmID:            s.firmID,
		ClioID:            rec.clioID,
		Number:            number,
		Description:       rec.description,
		Status:            rec.status,
		BillingMethod:     rec.billingMethod,
		ClientID:          clientID,
		ResponsibleUserID: userID,
		OpenedAt:          rec.openedAt,
		ClosedAt:          rec.closedAt,
		CreatedAt:         s.now(),
	}
	ok, fatal := s.writeRow(clio.KindMatter, rec.clioID, s.tx.InsertMatter(ctx, row))
	if fatal != nil {
		return fatal
	}
	if ok {
		s.res.Register(clio.KindMatter, row.ID, identity.ClioKey(rec.clioID), identity.NumberKey(number), identity.NumberKey(rec.number))
		s.result.created(clio.KindMatter)
	}
	return nil
}

func (s *sessionRun) seedActivities(ctx context.Context) error {
	rows, err := s.tx.ListActivities(ctx, s.firmID)
	if err != nil {
		return err
	}
	for _, r := range rows {
		s.res.Register(clio.KindActivity, r.ID, identity.ClioKey(r.ClioID))
	}
	return nil
}

func (s *sessionRun) importActivity(ctx context.Context, raw clio.RawRecord) error {
	rec, sk := normalizeActivity(raw)
	if sk != nil {
		s.result.warn(clio.KindActivity, raw.ID(), sk.reason, sk.detail)
		return nil
	}
	if _, found := s.res.Resolve(clio.KindActivity, identity.ClioKey(rec.clioID)); found {
		s.result.existing(clio.KindActivity)
		return nil
	}

	matterID, resolved := s.requireParent(clio.KindMatter, rec.matterClioID)
	if !resolved {
		s.result.warn(clio.KindActivity, rec.clioID, SkipUnresolvable,
			fmt.Sprintf("matter %d not found", rec.matterClioID))
		return nil
	}
	userID := s.resolveParent(clio.KindUser, rec.userClioID, clio.KindActivity, rec.clioID, "user")

	row := &store.ActivityRow{
		ID:        uuid.New(),
		FirmID:    s.firmID,
		ClioID:    rec.clioID,
		Type:      rec.atype,
		Status:    rec.status,
		MatterID:  matterID,
		UserID:    userID,
		Date:      rec.date,
		Quantity:  rec.quantity,
		Price:     rec.price,
		Note:      rec.note,
		CreatedAt: s.now(),
	}
	ok, fatal := s.writeRow(clio.KindActivity, rec.clioID, s.tx.InsertActivity(ctx, row))
	if fatal != nil {
		return fatal
	}
	if ok {
		s.res.Register(clio.KindActivity, row.ID, identity.ClioKey(rec.clioID))
		s.result.created(clio.KindActivity)
	}
	return nil
}

func (s *sessionRun) seedBills(ctx context.Context) error {
	rows, err := s.tx.ListBills(ctx, s.firmID)
	if err != nil {
		return err
	}
	for _, r := range rows {
		s.res.Register(clio.KindBill, r.ID, identity.ClioKey(r.ClioID))
	}
	return nil
}

func (s *sessionRun) importBill(ctx context.Context, raw clio.RawRecord) error {
	rec, sk := normalizeBill(raw)
	if sk != nil {
		s.result.warn(clio.KindBill, raw.ID(), sk.reason, sk.detail)
		return nil
	}
	if _, found := s.res.Resolve(clio.KindBill, identity.ClioKey(rec.clioID)); found {
		s.result.existing(clio.KindBill)
		return nil
	}

	// Bills stay importable without a resolvable matter; the client link
	// still identifies who was billed.
	matterID := s.resolveParent(clio.KindMatter, rec.matterClioID, clio.KindBill, rec.clioID, "matter")
	contactID := s.resolveParent(clio.KindContact, rec.contactClioID, clio.KindBill, rec.clioID, "client")

	row := &store.BillRow{
		ID:        uuid.New(),
		FirmID:    s.firmID,
		ClioID:    rec.clioID,
		Number:    rec.number,
		Status:    rec.status,
		MatterID:  matterID,
		ContactID: contactID,
		IssuedAt:  rec.issuedAt,
		DueAt:     rec.dueAt,
		Total:     rec.total,
		Balance:   rec.balance,
		CreatedAt: s.now(),
	}
	ok, fatal := s.writeRow(clio.KindBill, rec.clioID, s.tx.InsertBill(ctx, row))
	if fatal != nil {
		return fatal
	}
	if ok {
		s.res.Register(clio.KindBill, row.ID, identity.ClioKey(rec.clioID))
		s.result.created(clio.KindBill)
	}
	return nil
}

func (s *sessionRun) seedCalendarEntries(ctx context.Context) error {
	rows, err := s.tx.ListCalendarEntries(ctx, s.firmID)
	if err != nil {
		return err
	}
	for _, r := range rows {
		s.res.Register(clio.KindCalendarEntry, r.ID, identity.ClioKey(r.ClioID))
	}
	return nil
}

func (s *sessionRun) importCalendarEntry(ctx context.Context, raw clio.RawRecord) error {
	rec, sk := normalizeCalendarEntry(raw)
	if sk != nil {
		s.result.warn(clio.KindCalendarEntry, raw.ID(), sk.reason, sk.detail)
		return nil
	}
	if _, found := s.res.Resolve(clio.KindCalendarEntry, identity.ClioKey(rec.clioID)); found {
		s.result.existing(clio.KindCalendarEntry)
		return nil
	}

	matterID, resolved := s.requireParent(clio.KindMatter, rec.matterClioID)
	if !resolved {
		s.result.warn(clio.KindCalendarEntry, rec.clioID, SkipUnresolvable,
			fmt.Sprintf("matter %d not found", rec.matterClioID))
		return nil
	}

	row := &store.CalendarEntryRow{
		ID:          uuid.New(),
		FirmID:      s.firmID,
		ClioID:      rec.clioID,
		MatterID:    matterID,
		Type:        rec.etype,
		Summary:     rec.summary,
		Description: rec.description,
		StartAt:     rec.startAt,
		EndAt:       rec.endAt,
		AllDay:      rec.allDay,
		CreatedAt:   s.now(),
	}
	ok, fatal := s.writeRow(clio.KindCalendarEntry, rec.clioID, s.tx.InsertCalendarEntry(ctx, row))
	if fatal != nil {
		return fatal
	}
	if ok {
		s.res.Register(clio.KindCalendarEntry, row.ID, identity.ClioKey(rec.clioID))
		s.result.created(clio.KindCalendarEntry)
	}
	return nil
}

func (s *sessionRun) seedNotes(ctx context.Context) error {
	rows, err := s.tx.ListNotes(ctx, s.firmID)
	if err != nil {
		return err
	}
	for _, r := range rows {
		s.res.Register(clio.KindNote, r.ID, noteKeys(r.ClioID, r.Subject, r.Body)...)
	}
	return nil
}

// noteKeys prefers the external id; id-less note sub-records fall back to
// a content key so re-runs still recognize them.
func noteKeys(clioID int64, subject, body string) []string {
	if clioID != 0 {
		return []string{identity.ClioKey(clioID)}
	}
	return []string{identity.NameKey(subject + "|" + body)}
}

func (s *sessionRun) importNote(ctx context.Context, raw clio.RawRecord) error {
	rec, sk := normalizeNote(raw)
	if sk != nil {
		s.result.warn(clio.KindNote, raw.ID(), sk.reason, sk.detail)
		return nil
	}
	keys := noteKeys(rec.clioID, rec.subject, rec.body)
	if _, found := s.res.Resolve(clio.KindNote, keys...); found {
		s.result.existing(clio.KindNote)
		return nil
	}

	matterID, matterOK := s.requireParent(clio.KindMatter, rec.matterClioID)
	contactID, contactOK := s.requireParent(clio.KindContact, rec.contactClioID)
	if !matterOK || !contactOK {
		s.result.warn(clio.KindNote, rec.clioID, SkipUnresolvable, "parent record not found")
		return nil
	}
	if matterID == nil && contactID == nil {
		s.result.warn(clio.KindNote, rec.clioID, SkipUnresolvable, "note has no parent")
		return nil
	}

	row := &store.NoteRow{
		ID:        uuid.New(),
		FirmID:    s.firmID,
		ClioID:    rec.clioID,
		MatterID:  matterID,
		ContactID: contactID,
		Subject:   rec.subject,
		Body:      rec.body,
		Date:      rec.date,
		CreatedAt: s.now(),
	}
	ok, fatal := s.writeRow(clio.KindNote, rec.clioID, s.tx.InsertNote(ctx, row))
	if fatal != nil {
		return fatal
	}
	if ok {
		s.res.Register(clio.KindNote, row.ID, keys...)
		s.result.created(clio.KindNote)
	}
	return nil
}

// requireParent resolves a mandatory reference. Returns (nil, true) when
// the record carries no reference at all, and (nil, false) when it names
// a parent that cannot be resolved.
func (s *sessionRun) requireParent(kind clio.Kind, clioID int64) (*uuid.UUID, bool) {
	if clioID == 0 {
		return nil, true
	}
	id, found := s.res.Resolve(kind, identity.ClioKey(clioID))
	if !found {
		return nil, false
	}
	return &id, true
}

// resolveParent resolves an optional reference. An unresolvable parent
// degrades to a nil link with a log line, not a skip.
func (s *sessionRun) resolveParent(kind clio.Kind, clioID int64, owner clio.Kind, ownerID int64, field string) *uuid.UUID {
	if clioID == 0 {
		return nil
	}
	id, found := s.res.Resolve(kind, identity.ClioKey(clioID))
	if !found {
		s.imp.logger.Warn().
			Str("kind", string(owner)).
			Int64("clio_id", ownerID).
			Str("field", field).
			Int64("ref", clioID).
			Msg("Reference left unlinked")
		return nil
	}
	return &id
}

// uniqueMatterNumber resolves display-number collisions against
// already-existing data: firm-derived prefix first, then a bounded
// numbered suffix, then a timestamp fallback.
func (s *sessionRun) uniqueMatterNumber(ctx context.Context, base string) (string, error) {
	exists, err := s.tx.MatterNumberExists(ctx, base)
	if err != nil {
		return "", err
	}
	if !exists {
		return base, nil
	}

	prefixed := s.firmPrefix + "-" + base
	exists, err = s.tx.MatterNumberExists(ctx, prefixed)
	if err != nil {
		return "", err
	}
	if !exists {
		return prefixed, nil
	}

	for i := 2; i <= 5; i++ {
		candidate := fmt.Sprintf("%s-%d", prefixed, i)
		exists, err = s.tx.MatterNumberExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return fmt.Sprintf("%s-%d", prefixed, s.now().UnixNano()), nil
}

// firmPrefix derives a short uppercase tag from the firm name, used to
// disambiguate colliding matter numbers.
func firmPrefix(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
				b.WriteRune(r)
				break
			}
		}
		if b.Len() >= 4 {
			break
		}
	}
	if b.Len() == 0 {
		return "FIRM"
	}
	return strings.ToUpper(b.String())
}
