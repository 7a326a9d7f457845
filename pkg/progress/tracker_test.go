package progress

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(retention time.Duration) *Tracker {
	t := NewTracker(retention)
	t.Close()
	return t
}

func TestSessionLifecycle(t *testing.T) {
	tr := newTestTracker(time.Hour)

	tr.Register("s1", []string{"users", "contacts"})
	snap, ok := tr.Snapshot("s1")
	require.True(t, ok)
	assert.Equal(t, SessionNotStarted, snap.State)
	require.Len(t, snap.Steps, 2)
	assert.Equal(t, "users", snap.Steps[0].Name)
	assert.Equal(t, StepPending, snap.Steps[0].Status)

	tr.Start("s1")
	tr.Update("s1", "users", StepRunning, 0, "")
	tr.Update("s1", "users", StepDone, 42, "")
	tr.Update("s1", "contacts", StepSkipped, 0, "disabled by request")
	tr.Complete("s1")

	snap, ok = tr.Snapshot("s1")
	require.True(t, ok)
	assert.Equal(t, SessionCompleted, snap.State)
	assert.Equal(t, StepDone, snap.Steps[0].Status)
	assert.Equal(t, 42, snap.Steps[0].Count)
	assert.Equal(t, StepSkipped, snap.Steps[1].Status)
	assert.Equal(t, "disabled by request", snap.Steps[1].Message)
	assert.False(t, snap.CompletedAt.IsZero())
}

func TestFailRecordsTerminalError(t *testing.T) {
	tr := newTestTracker(time.Hour)
	tr.Register("s1", []string{"matters"})
	tr.Start("s1")
	tr.Update("s1", "matters", StepError, 10, "store write failed")
	tr.Fail("s1", "store write failed")

	snap, ok := tr.Snapshot("s1")
	require.True(t, ok)
	assert.Equal(t, SessionError, snap.State)
	assert.Equal(t, "store write failed", snap.Error)
	require.NotEmpty(t, snap.Logs)
	assert.Contains(t, snap.Logs[len(snap.Logs)-1].Message, "migration failed")
}

func TestUnknownSessionIsNoOp(t *testing.T) {
	tr := newTestTracker(time.Hour)
	tr.Start("missing")
	tr.Update("missing", "users", StepDone, 1, "")
	tr.Fail("missing", "boom")

	_, ok := tr.Snapshot("missing")
	assert.False(t, ok)
}

func TestLogRingDropsOldest(t *testing.T) {
	tr := newTestTracker(time.Hour)
	tr.Register("s1", []string{"users"})
	tr.Start("s1")

	for i := 0; i < LogCapacity+50; i++ {
		tr.Log("s1", fmt.Sprintf("line %d", i))
	}

	snap, ok := tr.Snapshot("s1")
	require.True(t, ok)
	assert.Len(t, snap.Logs, LogCapacity)
	assert.Equal(t, fmt.Sprintf("line %d", LogCapacity+49), snap.Logs[len(snap.Logs)-1].Message)
}

func TestUpdateAddsUnknownStep(t *testing.T) {
	tr := newTestTracker(time.Hour)
	tr.Register("s1", []string{"users"})
	tr.Update("s1", "firm", StepDone, 1, "")

	snap, ok := tr.Snapshot("s1")
	require.True(t, ok)
	require.Len(t, snap.Steps, 2)
	assert.Equal(t, "firm", snap.Steps[1].Name)
}

func TestSweepDiscardsIdleTerminalSessions(t *testing.T) {
	tr := newTestTracker(time.Hour)

	base := time.Now()
	tr.now = func() time.Time { return base }
	tr.Register("done", []string{"users"})
	tr.Complete("done")
	tr.Register("live", []string{"users"})
	tr.Start("live")

	tr.now = func() time.Time { return base.Add(2 * time.Hour) }
	tr.sweep()

	_, ok := tr.Snapshot("done")
	assert.False(t, ok, "terminal session past retention should be swept")
	_, ok = tr.Snapshot("live")
	assert.True(t, ok, "running session must survive the sweep")
}

func TestRemove(t *testing.T) {
	tr := newTestTracker(time.Hour)
	tr.Register("s1", []string{"users"})
	tr.Remove("s1")
	_, ok := tr.Snapshot("s1")
	assert.False(t, ok)
}
