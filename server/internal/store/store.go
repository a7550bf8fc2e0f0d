package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/soilwatch/soilwatch/pkg/types"
)

// Entry is a reading together with the time it was received.
type Entry struct {
	Reading    types.SensorReading
	ReceivedAt time.Time
}

// Store is a thread-safe in-memory latest-reading store, keyed by sensor id.
// A background goroutine (Run) periodically evicts entries that have not
// been updated within the configured TTL.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Put stores or replaces the latest reading for r.SensorID.
// A reading older than the one already held is ignored so that late
// arrivals do not replace fresher data.
func (s *Store) Put(r types.SensorReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.data[r.SensorID]; ok && r.Timestamp.Before(cur.Reading.Timestamp) {
		return
	}
	s.data[r.SensorID] = &Entry{
		Reading:    r,
		ReceivedAt: s.now(),
	}
}

// Latest returns the most recent live reading for sensorID.
// Entries older than the TTL are treated as absent.
func (s *Store) Latest(sensorID string) (types.SensorReading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[sensorID]
	if !ok || !e.ReceivedAt.After(s.now().Add(-s.ttl)) {
		return types.SensorReading{}, false
	}
	return e.Reading, true
}

// Get returns a copy of the live entry for sensorID.
func (s *Store) Get(sensorID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[sensorID]
	if !ok || !e.ReceivedAt.After(s.now().Add(-s.ttl)) {
		return Entry{}, false
	}
	return *e, true
}

// List returns all entries whose ReceivedAt is within the TTL.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if e.ReceivedAt.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// TTL returns the configured entry lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Evict removes entries whose ReceivedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, e := range s.data {
		if !e.ReceivedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL interval
// (minimum 1 second). Run blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale readings", "count", n)
			}
		}
	}
}
