package importer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/casefront/clio-migrate/pkg/clio"
)

// SkipReason classifies why one record was not imported.
type SkipReason string

const (
	SkipNoEmail      SkipReason = "no_valid_email"
	SkipNoName       SkipReason = "no_name"
	SkipNoID         SkipReason = "missing_external_id"
	SkipTransform    SkipReason = "transform_failed"
	SkipUnresolvable SkipReason = "unresolvable_parent"
	SkipWriteFailed  SkipReason = "write_failed"
)

// Warning records one skipped or degraded record. Warnings never abort a
// session.
type Warning struct {
	Kind   clio.Kind  `json:"kind"`
	ClioID int64      `json:"clio_id,omitempty"`
	Reason SkipReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

func (w Warning) String() string {
	if w.ClioID != 0 {
		return fmt.Sprintf("%s %d: %s (%s)", w.Kind, w.ClioID, w.Reason, w.Detail)
	}
	return fmt.Sprintf("%s: %s (%s)", w.Kind, w.Reason, w.Detail)
}

// KindCounts is the per-entity outcome tally.
type KindCounts struct {
	// Created counts rows written this run.
	Created int `json:"created"`

	// Existing counts records resolved to rows from a prior run or another
	// onboarding path; nothing new is written for them.
	Existing int `json:"existing"`

	// Skipped counts records dropped with a warning.
	Skipped int `json:"skipped"`
}

// Result is the terminal summary of one import session. Immutable once
// the session reaches a terminal state.
type Result struct {
	FirmID      uuid.UUID `json:"firm_id"`
	FirmCreated bool      `json:"firm_created"`

	Counts   map[clio.Kind]KindCounts `json:"counts"`
	Warnings []Warning                `json:"warnings,omitempty"`

	// FetchWarnings lists partitions that failed or were truncated on the
	// read side.
	FetchWarnings []string `json:"fetch_warnings,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

func newResult(start time.Time) *Result {
	return &Result{
		Counts:    make(map[clio.Kind]KindCounts),
		StartedAt: start,
	}
}

func (r *Result) warn(kind clio.Kind, clioID int64, reason SkipReason, detail string) {
	r.Warnings = append(r.Warnings, Warning{Kind: kind, ClioID: clioID, Reason: reason, Detail: detail})
	c := r.Counts[kind]
	c.Skipped++
	r.Counts[kind] = c
}

func (r *Result) created(kind clio.Kind) {
	c := r.Counts[kind]
	c.Created++
	r.Counts[kind] = c
}

func (r *Result) existing(kind clio.Kind) {
	c := r.Counts[kind]
	c.Existing++
	r.Counts[kind] = c
}
