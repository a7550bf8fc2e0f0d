package alerts

import (
	"context"
	"log/slog"
	"time"

	"github.com/soilwatch/soilwatch/pkg/types"
)

// RecordStore is the authoritative store of delivered alert records.
type RecordStore interface {
	// LatestByIdentity returns the record for identity, or (nil, nil) if none.
	LatestByIdentity(ctx context.Context, identity string) (*types.AlertRecord, error)
	// Save upserts rec keyed by its identity.
	Save(ctx context.Context, rec types.AlertRecord) error
	// DeleteBefore removes records sent before cutoff, oldest first.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Decision is the result of a suppression check.
type Decision struct {
	Proceed  bool
	Identity string
}

// Deduplicator decides whether a violation set was already notified inside
// the suppression window.
//
// The local cache only spares store round-trips and covers for store
// failures within this process; the store decides otherwise.
type Deduplicator struct {
	store  RecordStore
	window time.Duration
	now    func() time.Time

	// identity -> time the alert was reserved or sent
	local *ttlCache[string, time.Time]
}

// NewDeduplicator creates a Deduplicator with the given suppression window.
// A nil now uses time.Now.
func NewDeduplicator(store RecordStore, window time.Duration, now func() time.Time) *Deduplicator {
	if now == nil {
		now = time.Now
	}
	return &Deduplicator{
		store:  store,
		window: window,
		now:    now,
		local:  newTTLCache[string, time.Time](window, now),
	}
}

// Window returns the suppression window.
func (d *Deduplicator) Window() time.Duration { return d.window }

// ShouldNotify reports whether vs should be delivered. When it proceeds the
// identity is reserved locally, so concurrent evaluations of the same alert
// in this process do not both notify; callers that end up not sending must
// call Release.
//
// A failing store lookup fails open: a missed real alert is worse than a
// duplicate.
func (d *Deduplicator) ShouldNotify(ctx context.Context, vs types.ViolationSet, readingTime time.Time) Decision {
	id := Identity(vs.PlantID, vs.Violations)

	if _, ok := d.local.Get(id); ok {
		slog.Debug("alerts: suppressed by local cache",
			"plant", vs.PlantID, "identity", id, "reading_time", readingTime)
		return Decision{Proceed: false, Identity: id}
	}

	rec, err := d.store.LatestByIdentity(ctx, id)
	switch {
	case err != nil:
		slog.Warn("alerts: dedup store lookup failed, failing open",
			"plant", vs.PlantID, "identity", id, "err", err)
	case rec != nil && d.now().Sub(rec.SentAt) < d.window:
		d.local.SetUntil(id, rec.SentAt, rec.SentAt.Add(d.window))
		slog.Debug("alerts: suppressed by stored record",
			"plant", vs.PlantID, "identity", id, "sent_at", rec.SentAt, "reading_time", readingTime)
		return Decision{Proceed: false, Identity: id}
	}

	if !d.local.Reserve(id, d.now()) {
		return Decision{Proceed: false, Identity: id}
	}
	return Decision{Proceed: true, Identity: id}
}

// Release drops a reservation made by ShouldNotify for an alert that was not sent.
func (d *Deduplicator) Release(identity string) {
	d.local.Delete(identity)
}

// Record persists rec. The local cache is marked first so a failed write
// still suppresses re-alerts for the rest of the window in this process;
// a restart before a successful write may re-alert once.
func (d *Deduplicator) Record(ctx context.Context, rec types.AlertRecord) error {
	d.local.SetUntil(rec.Identity, rec.SentAt, rec.SentAt.Add(d.window))
	if err := d.store.Save(ctx, rec); err != nil {
		slog.Error("alerts: persist delivered alert failed",
			"identity", rec.Identity, "plant", rec.PlantID, "err", err)
		return err
	}
	return nil
}

// Purge drops expired local entries.
func (d *Deduplicator) Purge() int {
	return d.local.Purge()
}
