// Package migration is the job-control surface: it accepts migration
// requests, runs each session on its own background goroutine and serves
// polled progress and terminal results.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/casefront/clio-migrate/pkg/clio"
	"github.com/casefront/clio-migrate/pkg/connstore"
	"github.com/casefront/clio-migrate/pkg/importer"
	"github.com/casefront/clio-migrate/pkg/logging"
	"github.com/casefront/clio-migrate/pkg/progress"
	"github.com/casefront/clio-migrate/pkg/store"
)

var (
	// ErrUnknownSession indicates the session id was never started or has
	// been swept.
	ErrUnknownSession = errors.New("unknown session")

	// ErrSessionRunning indicates the session has not reached a terminal
	// state yet.
	ErrSessionRunning = errors.New("session still running")
)

// StartRequest describes one migration job.
type StartRequest struct {
	// ConnectionID names the stored credential to fetch with.
	ConnectionID string `json:"connection_id"`

	// FirmName is the target firm, found or created by name.
	FirmName string `json:"firm_name"`

	// Kinds toggles entity kinds; nil imports everything.
	Kinds map[clio.Kind]bool `json:"kinds,omitempty"`
}

// Config wires the service's collaborators.
type Config struct {
	Credentials connstore.Store
	Store       store.Store
	Tracker     *progress.Tracker

	// NewFetcher builds the per-session fetch pipeline on the session's
	// token source. Production binds this to the partitioned API fetcher;
	// tests substitute canned streams.
	NewFetcher func(tokens clio.TokenSource) importer.Fetcher

	// Retention bounds how long terminal results stay retrievable.
	// Defaults to progress.DefaultRetention, matching the tracker window.
	Retention time.Duration
}

type finished struct {
	result *importer.Result
	err    error
	at     time.Time
}

// Service runs migration sessions. One goroutine per session; no mid-job
// cancellation, a job runs to completion or fatal error. Disconnecting
// the credential makes the next fetch fail unauthorized, which ends the
// session.
type Service struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	running map[string]chan struct{}
	done    map[string]finished

	stopOnce sync.Once
	stop     chan struct{}
	now      func() time.Time
}

// NewService creates the job-control service and starts its result sweep
// goroutine. Call Close to stop the sweeper.
func NewService(cfg Config) *Service {
	if cfg.Credentials == nil || cfg.Store == nil || cfg.Tracker == nil || cfg.NewFetcher == nil {
		panic("migration.NewService: all Config fields are required")
	}
	if cfg.Retention <= 0 {
		cfg.Retention = progress.DefaultRetention
	}
	s := &Service{
		cfg:     cfg,
		logger:  logging.NewLogger("migration"),
		running: make(map[string]chan struct{}),
		done:    make(map[string]finished),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go s.sweepLoop(cfg.Retention / 4)
	return s
}

// Close stops the sweep goroutine. Running sessions finish normally.
func (s *Service) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Service) sweepLoop(interval time.Duration) {
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep drops terminal results older than the retention window, matching
// the tracker's session sweep so progress and result expire together.
func (s *Service) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.cfg.Retention)
	for id, fin := range s.done {
		if fin.at.Before(cutoff) {
			delete(s.done, id)
			s.logger.Debug().Str("session_id", id).Msg("Swept expired session result")
		}
	}
}

// StartSession validates the request, registers the session and spawns
// its runner. It returns as soon as the job is accepted; callers poll
// GetProgress afterwards.
func (s *Service) StartSession(ctx context.Context, req StartRequest) (string, error) {
	if req.FirmName == "" {
		return "", fmt.Errorf("firm name is required")
	}
	if _, err := s.cfg.Credentials.Get(ctx, req.ConnectionID); err != nil {
		return "", fmt.Errorf("validate connection: %w", err)
	}

	sessionID := uuid.NewString()
	s.cfg.Tracker.Register(sessionID, importer.Steps())

	tokens := connstore.TokenSource(s.cfg.Credentials, req.ConnectionID)
	imp := importer.New(s.cfg.NewFetcher(tokens), s.cfg.Store)

	doneCh := make(chan struct{})
	s.mu.Lock()
	s.running[sessionID] = doneCh
	s.mu.Unlock()

	s.logger.Info().
		Str("session_id", sessionID).
		Str("firm", req.FirmName).
		Msg("Migration session accepted")

	go s.run(sessionID, imp, req, doneCh)
	return sessionID, nil
}

// run drives one session to its terminal state. The session is detached
// from the request context on purpose: the triggering call returns
// immediately and the job runs to completion.
func (s *Service) run(sessionID string, imp *importer.Importer, req StartRequest, doneCh chan struct{}) {
	defer close(doneCh)

	s.cfg.Tracker.Start(sessionID)
	rep := sessionReporter{tracker: s.cfg.Tracker, sessionID: sessionID}

	result, err := imp.Run(context.Background(), importer.Config{
		FirmName: req.FirmName,
		Kinds:    req.Kinds,
	}, rep)

	s.mu.Lock()
	s.done[sessionID] = finished{result: result, err: err, at: s.now()}
	delete(s.running, sessionID)
	s.mu.Unlock()

	if err != nil {
		s.cfg.Tracker.Fail(sessionID, err.Error())
		s.logger.Error().
			Err(err).
			Str("session_id", sessionID).
			Msg("Migration session failed")
		return
	}
	s.cfg.Tracker.Complete(sessionID)
	s.logger.Info().
		Str("session_id", sessionID).
		Msg("Migration session completed")
}

// Wait blocks until the session reaches a terminal state. Internal and
// test use only; the external contract stays poll-based.
func (s *Service) Wait(sessionID string) {
	s.mu.Lock()
	doneCh, ok := s.running[sessionID]
	s.mu.Unlock()
	if !ok {
		return
	}
	<-doneCh
}

// GetProgress returns the latest session snapshot.
func (s *Service) GetProgress(sessionID string) (progress.Snapshot, error) {
	snap, ok := s.cfg.Tracker.Snapshot(sessionID)
	if !ok {
		return progress.Snapshot{}, ErrUnknownSession
	}
	return snap, nil
}

// GetResult returns the terminal result. While the session is still
// running it returns ErrSessionRunning; a failed session returns its
// partial result alongside the fatal error.
func (s *Service) GetResult(sessionID string) (*importer.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fin, ok := s.done[sessionID]; ok {
		return fin.result, fin.err
	}
	if _, ok := s.running[sessionID]; ok {
		return nil, ErrSessionRunning
	}
	return nil, ErrUnknownSession
}

// Disconnect deletes a connection's credential. In-flight sessions on
// that connection fail unauthorized at their next fetch.
func (s *Service) Disconnect(ctx context.Context, connectionID string) error {
	return s.cfg.Credentials.Delete(ctx, connectionID)
}

// sessionReporter binds the importer's progress events to one tracker
// session.
type sessionReporter struct {
	tracker   *progress.Tracker
	sessionID string
}

func (r sessionReporter) Update(step string, status progress.StepStatus, count int, msg string) {
	r.tracker.Update(r.sessionID, step, status, count, msg)
}

func (r sessionReporter) Log(msg string) {
	r.tracker.Log(r.sessionID, msg)
}
