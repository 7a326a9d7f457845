// Package progress tracks the state of running migration sessions.
//
// A session moves through not_started -> running -> completed | error, and
// each entity step moves through pending -> running -> done | error |
// skipped. The tracker only records what the importer reports; callers poll
// Snapshot for the latest view. Terminal sessions are swept after a
// retention window.
package progress

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/casefront/clio-migrate/pkg/logging"
)

// SessionState is the lifecycle state of one migration session.
type SessionState string

const (
	SessionNotStarted SessionState = "not_started"
	SessionRunning    SessionState = "running"
	SessionCompleted  SessionState = "completed"
	SessionError      SessionState = "error"
)

// StepStatus is the state of one entity step within a session.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepError   StepStatus = "error"
	StepSkipped StepStatus = "skipped"
)

// LogCapacity bounds the per-session log ring. Oldest lines drop first.
const LogCapacity = 200

// DefaultRetention is how long a terminal or idle session survives before
// the sweeper discards it.
const DefaultRetention = time.Hour

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "migration_sessions_active",
		Help: "Number of sessions currently registered in the tracker",
	})
	sessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "migration_sessions_swept_total",
		Help: "Sessions discarded by the idle sweeper",
	})
	progressUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "migration_progress_updates_total",
		Help: "Progress updates recorded, by step status",
	}, []string{"status"})
)

// LogLine is one timestamped entry in a session's log ring.
type LogLine struct {
	Time    time.Time `json:"time"`
	Step    string    `json:"step,omitempty"`
	Message string    `json:"message"`
}

// StepSnapshot is the polled view of one entity step.
type StepSnapshot struct {
	Name    string     `json:"name"`
	Status  StepStatus `json:"status"`
	Count   int        `json:"count"`
	Message string     `json:"message,omitempty"`
}

// Snapshot is the polled view of one session.
type Snapshot struct {
	SessionID   string         `json:"session_id"`
	State       SessionState   `json:"state"`
	Steps       []StepSnapshot `json:"steps"`
	Logs        []LogLine      `json:"logs"`
	StartedAt   time.Time      `json:"started_at,omitempty"`
	CompletedAt time.Time      `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
}

type stepState struct {
	status  StepStatus
	count   int
	message string
}

type session struct {
	state       SessionState
	stepOrder   []string
	steps       map[string]*stepState
	logs        []LogLine
	startedAt   time.Time
	completedAt time.Time
	errMessage  string
	lastTouched time.Time
}

func (s *session) touch(now time.Time) {
	s.lastTouched = now
}

func (s *session) appendLog(now time.Time, step, msg string) {
	if len(s.logs) >= LogCapacity {
		copy(s.logs, s.logs[1:])
		s.logs = s.logs[:LogCapacity-1]
	}
	s.logs = append(s.logs, LogLine{Time: now, Step: step, Message: msg})
}

// Tracker holds all known sessions behind one mutex. Each runner only
// touches its own session, so contention is negligible.
type Tracker struct {
	mu        sync.Mutex
	sessions  map[string]*session
	retention time.Duration
	logger    zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	now      func() time.Time
}

// NewTracker creates a tracker and starts its sweep goroutine. Call Close
// to stop the sweeper.
func NewTracker(retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	t := &Tracker{
		sessions:  make(map[string]*session),
		retention: retention,
		logger:    logging.NewLogger("progress"),
		stop:      make(chan struct{}),
		now:       time.Now,
	}
	go t.sweepLoop(retention / 4)
	return t
}

// Close stops the sweep goroutine. Registered sessions stay readable.
func (t *Tracker) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Register creates a session in not_started state with the given steps,
// all pending, in the given order.
func (t *Tracker) Register(sessionID string, steps []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	s := &session{
		state:       SessionNotStarted,
		stepOrder:   append([]string(nil), steps...),
		steps:       make(map[string]*stepState, len(steps)),
		lastTouched: now,
	}
	for _, name := range steps {
		s.steps[name] = &stepState{status: StepPending}
	}
	t.sessions[sessionID] = s
	sessionsActive.Set(float64(len(t.sessions)))
}

// Start moves a session to running.
func (t *Tracker) Start(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	if !ok {
		return
	}
	now := t.now()
	s.state = SessionRunning
	s.startedAt = now
	s.touch(now)
	s.appendLog(now, "", "migration started")
}

// Update records a step transition and appends a log line. Unknown steps
// are added on the fly so ad hoc sub-steps still show up in logs.
func (t *Tracker) Update(sessionID, step string, status StepStatus, count int, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	if !ok {
		return
	}
	st, ok := s.steps[step]
	if !ok {
		st = &stepState{}
		s.steps[step] = st
		s.stepOrder = append(s.stepOrder, step)
	}
	st.status = status
	st.count = count
	if msg != "" {
		st.message = msg
	}

	now := t.now()
	s.touch(now)
	line := string(status)
	if msg != "" {
		line += ": " + msg
	}
	s.appendLog(now, step, line)
	progressUpdates.WithLabelValues(string(status)).Inc()
}

// Log appends a free-form log line without changing any step state.
func (t *Tracker) Log(sessionID, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	if !ok {
		return
	}
	now := t.now()
	s.touch(now)
	s.appendLog(now, "", msg)
}

// Complete moves a session to completed.
func (t *Tracker) Complete(sessionID string) {
	t.finish(sessionID, SessionCompleted, "")
}

// Fail moves a session to error with a terminal message.
func (t *Tracker) Fail(sessionID, errMessage string) {
	t.finish(sessionID, SessionError, errMessage)
}

func (t *Tracker) finish(sessionID string, state SessionState, errMessage string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	if !ok {
		return
	}
	now := t.now()
	s.state = state
	s.completedAt = now
	s.errMessage = errMessage
	s.touch(now)
	if errMessage != "" {
		s.appendLog(now, "", "migration failed: "+errMessage)
	} else {
		s.appendLog(now, "", "migration completed")
	}
}

// Snapshot returns a copy of the session's current state. The second
// return is false when the session is unknown or already swept.
func (t *Tracker) Snapshot(sessionID string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	if !ok {
		return Snapshot{}, false
	}
	snap := Snapshot{
		SessionID:   sessionID,
		State:       s.state,
		Steps:       make([]StepSnapshot, 0, len(s.stepOrder)),
		Logs:        append([]LogLine(nil), s.logs...),
		StartedAt:   s.startedAt,
		CompletedAt: s.completedAt,
		Error:       s.errMessage,
	}
	for _, name := range s.stepOrder {
		st := s.steps[name]
		snap.Steps = append(snap.Steps, StepSnapshot{
			Name:    name,
			Status:  st.status,
			Count:   st.count,
			Message: st.message,
		})
	}
	return snap, true
}

// Remove discards a session immediately.
func (t *Tracker) Remove(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
	sessionsActive.Set(float64(len(t.sessions)))
}

func (t *Tracker) sweepLoop(interval time.Duration) {
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

// sweep drops sessions idle for longer than the retention window. Running
// sessions are kept regardless, since a long import updates rarely only
// when a partition stalls on rate limits.
func (t *Tracker) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.retention)
	for id, s := range t.sessions {
		if s.state == SessionRunning {
			continue
		}
		if s.lastTouched.Before(cutoff) {
			delete(t.sessions, id)
			sessionsSwept.Inc()
			t.logger.Debug().Str("session_id", id).Msg("Swept idle session")
		}
	}
	sessionsActive.Set(float64(len(t.sessions)))
}
