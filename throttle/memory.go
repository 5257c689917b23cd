package throttle

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 1024

type memoryEntry struct {
	rec     Record
	expires time.Time
}

// MemoryStore keeps records in process. Suitable for a single instance.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryEntry
	calls   int
}

var (
	_ Store       = (*MemoryStore)(nil)
	_ StalePurger = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryEntry)}
}

func (m *MemoryStore) CheckAndRecord(_ context.Context, scopeKey string, p Policy, now time.Time) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls%sweepEvery == 0 {
		m.sweep(now)
	}

	entry, exists := m.records[scopeKey]
	if !exists {
		entry.rec.ScopeKey = scopeKey
	}
	rec, d := p.Apply(entry.rec, exists, now)
	m.records[scopeKey] = memoryEntry{rec: rec, expires: rec.ExpiresAt(p)}
	return d, nil
}

// DeleteStale removes records whose window started, and whose cooldown ended,
// before cutoff.
func (m *MemoryStore) DeleteStale(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.records {
		if e.rec.WindowStart.Before(cutoff) && (e.rec.CooldownUntil.IsZero() || e.rec.CooldownUntil.Before(cutoff)) {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) sweep(now time.Time) {
	for k, e := range m.records {
		if now.After(e.expires) {
			delete(m.records, k)
		}
	}
}
