package connstore

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	creds     Credentials
	expiresAt time.Time
}

// Memory is the in-process credential store. Entries expire after the
// configured TTL and a background sweeper reclaims them.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	now      func() time.Time
}

// NewMemory creates a memory store and starts its sweeper. Call Close to
// stop the sweeper.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go m.sweepLoop()
	return m
}

// Close stops the sweep goroutine.
func (m *Memory) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Put stores a credential, resetting its TTL.
func (m *Memory) Put(ctx context.Context, connectionID string, creds Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[connectionID] = memoryEntry{
		creds:     creds,
		expiresAt: m.now().Add(m.ttl),
	}
	storeEntries.Set(float64(len(m.entries)))
	return nil
}

// Get returns the credential or ErrNotFound. Lookups of entries past
// their TTL delete them eagerly instead of waiting for the sweeper.
func (m *Memory) Get(ctx context.Context, connectionID string) (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[connectionID]
	if !ok {
		return Credentials{}, ErrNotFound
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, connectionID)
		storeEntries.Set(float64(len(m.entries)))
		return Credentials{}, ErrNotFound
	}
	return entry.creds, nil
}

// Delete removes a credential. Deleting an unknown id is a no-op.
func (m *Memory) Delete(ctx context.Context, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, connectionID)
	storeEntries.Set(float64(len(m.entries)))
	return nil
}

func (m *Memory) sweepLoop() {
	interval := m.ttl / 4
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, id)
		}
	}
	storeEntries.Set(float64(len(m.entries)))
}
