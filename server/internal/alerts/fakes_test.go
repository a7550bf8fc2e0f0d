package alerts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/soilwatch/soilwatch/pkg/types"
)

var errBoom = errors.New("boom")

// clock is a settable time source shared by the components under test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *clock { return &clock{t: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

// ── catalog ──────────────────────────────────────────────────────────────────

type fakeCatalog struct {
	mu      sync.Mutex
	entries map[string]*types.CatalogEntry
	err     error
	calls   int
}

func (c *fakeCatalog) PlantType(_ context.Context, key string) (*types.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.entries[key], nil
}

func (c *fakeCatalog) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func chilliCatalog() *fakeCatalog {
	return &fakeCatalog{entries: map[string]*types.CatalogEntry{
		"chilli": {
			Name:           "Chilli",
			ScientificName: "Capsicum annuum",
			Stages: []types.CatalogStage{
				{Stage: "Seedling", LowN: "10", HighN: "25", LowP: "10", HighP: "25",
					LowHum: "40", HighHum: "70"},
				{Stage: "Flowering", LowN: "20", HighN: "40", LowPH: "5.5", HighPH: "7"},
			},
		},
	}}
}

// ── plants ───────────────────────────────────────────────────────────────────

type fakePlants struct {
	bySensor map[string]*types.Plant
	err      error
}

func (p *fakePlants) PlantBySensor(_ context.Context, sensorID string) (*types.Plant, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.bySensor[sensorID], nil
}

func chilliPlant() *types.Plant {
	return &types.Plant{
		ID:           "plant-1",
		SensorID:     "sensor-1",
		PlantType:    "Chilli",
		Status:       "Seedling",
		PlotNumber:   "A3",
		LocationZone: "North",
	}
}

// ── recipients ───────────────────────────────────────────────────────────────

type fakeRecipients struct {
	list  []types.Recipient
	err   error
	roles []string
}

func (r *fakeRecipients) RecipientsByRoles(_ context.Context, roles []string) ([]types.Recipient, error) {
	r.roles = roles
	if r.err != nil {
		return nil, r.err
	}
	return r.list, nil
}

// ── records ──────────────────────────────────────────────────────────────────

type fakeRecords struct {
	mu        sync.Mutex
	byID      map[string]types.AlertRecord
	lookupErr error
	saveErr   error
	deleteErr error
	saves     int
	lookups   int
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{byID: make(map[string]types.AlertRecord)}
}

func (s *fakeRecords) LatestByIdentity(_ context.Context, id string) (*types.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	rec, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *fakeRecords) Save(ctx context.Context, rec types.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.byID[rec.Identity] = rec
	return nil
}

func (s *fakeRecords) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	var n int64
	for id, rec := range s.byID {
		if rec.SentAt.Before(cutoff) {
			delete(s.byID, id)
			n++
		}
	}
	return n, nil
}

func (s *fakeRecords) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *fakeRecords) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// ── sender ───────────────────────────────────────────────────────────────────

type fakeSender struct {
	mu    sync.Mutex
	fail  map[string]bool
	block map[string]bool
	sent  []string // addresses, in completion order
}

func (s *fakeSender) Send(ctx context.Context, to, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	fail, block := s.fail[to], s.block[to]
	s.mu.Unlock()

	if block {
		// Ignores ctx on purpose: a stalled provider call.
		time.Sleep(2 * time.Second)
	}
	if fail {
		return "", errBoom
	}
	s.mu.Lock()
	s.sent = append(s.sent, to)
	s.mu.Unlock()
	return "queued", nil
}

func (s *fakeSender) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// ── readings ─────────────────────────────────────────────────────────────────

type memReadings struct {
	mu     sync.Mutex
	latest map[string]types.SensorReading
}

func newMemReadings() *memReadings {
	return &memReadings{latest: make(map[string]types.SensorReading)}
}

func (m *memReadings) Put(r types.SensorReading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[r.SensorID] = r
}

func (m *memReadings) Latest(id string) (types.SensorReading, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.latest[id]
	return r, ok
}

// ── publisher ────────────────────────────────────────────────────────────────

type fakePublisher struct {
	mu   sync.Mutex
	recs []types.AlertRecord
}

func (p *fakePublisher) Publish(_ context.Context, rec types.AlertRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
}

func (p *fakePublisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.recs)
}
