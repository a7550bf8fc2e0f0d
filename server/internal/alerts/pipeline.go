package alerts

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/soilwatch/soilwatch/pkg/types"
	"github.com/soilwatch/soilwatch/server/internal/metrics"
)

// PlantRegistry looks up the plant bound to a sensor. PlantBySensor returns
// (nil, nil) when no plant is bound.
type PlantRegistry interface {
	PlantBySensor(ctx context.Context, sensorID string) (*types.Plant, error)
}

// RecipientDirectory lists recipients holding any of roles.
type RecipientDirectory interface {
	RecipientsByRoles(ctx context.Context, roles []string) ([]types.Recipient, error)
}

// Readings keeps the latest known reading per sensor.
type Readings interface {
	Put(r types.SensorReading)
	Latest(sensorID string) (types.SensorReading, bool)
}

// Publisher receives every delivered alert record, e.g. for dashboards.
type Publisher interface {
	Publish(ctx context.Context, rec types.AlertRecord)
}

// Status classifies the result of one pipeline run.
type Status string

const (
	StatusUnbound      Status = "unbound"
	StatusUnresolved   Status = "unresolved"
	StatusInRange      Status = "in_range"
	StatusSuppressed   Status = "suppressed"
	StatusNoRecipients Status = "no_recipients"
	StatusDispatched   Status = "dispatched"
	StatusNoReading    Status = "no_reading"
	StatusError        Status = "error"
)

// Outcome describes what the pipeline did with one reading.
type Outcome struct {
	SensorID   string                `json:"sensorId"`
	PlantID    string                `json:"plantId,omitempty"`
	Status     Status                `json:"status"`
	Reason     string                `json:"reason,omitempty"`
	Identity   string                `json:"identity,omitempty"`
	Violations []types.Violation     `json:"violations,omitempty"`
	Message    string                `json:"message,omitempty"`
	Report     *types.DeliveryReport `json:"report,omitempty"`
}

// Settings are the hot-reloadable pipeline parameters.
type Settings struct {
	MaxMessageLength   int
	Location           *time.Location
	SendTimeout        time.Duration
	MaxConcurrentSends int
	EligibleRoles      []string
}

// Deps are the pipeline's collaborators. Publisher may be nil.
type Deps struct {
	Plants     PlantRegistry
	Catalog    Catalog
	Recipients RecipientDirectory
	Records    RecordStore
	Sender     Sender
	Readings   Readings
	Publisher  Publisher
}

// Options configure a Pipeline. A nil Now uses time.Now.
type Options struct {
	CatalogCacheTTL   time.Duration
	SuppressionWindow time.Duration
	Settings          Settings
	Now               func() time.Time
}

type runtime struct {
	settings   Settings
	formatter  Formatter
	dispatcher *Dispatcher
}

// Pipeline orchestrates resolve, evaluate, dedupe, format, dispatch and
// persist for each reading. It is safe for concurrent use; readings for
// different sensors run independently.
type Pipeline struct {
	plants     PlantRegistry
	recipients RecipientDirectory
	records    RecordStore
	sender     Sender
	readings   Readings
	publisher  Publisher

	resolver *Resolver
	dedup    *Deduplicator
	now      func() time.Time

	rt atomic.Pointer[runtime]
}

// NewPipeline wires a Pipeline from its collaborators.
func NewPipeline(d Deps, o Options) *Pipeline {
	now := o.Now
	if now == nil {
		now = time.Now
	}
	p := &Pipeline{
		plants:     d.Plants,
		recipients: d.Recipients,
		records:    d.Records,
		sender:     d.Sender,
		readings:   d.Readings,
		publisher:  d.Publisher,
		resolver:   NewResolver(d.Catalog, o.CatalogCacheTTL, now),
		dedup:      NewDeduplicator(d.Records, o.SuppressionWindow, now),
		now:        now,
	}
	p.Apply(o.Settings)
	return p
}

// Apply swaps in new settings; runs already in flight keep the old ones.
func (p *Pipeline) Apply(s Settings) {
	p.rt.Store(&runtime{
		settings:   s,
		formatter:  Formatter{MaxLength: s.MaxMessageLength, Location: s.Location},
		dispatcher: NewDispatcher(p.sender, s.SendTimeout, s.MaxConcurrentSends),
	})
}

// Submit stamps a missing timestamp, records r as its sensor's latest
// reading and runs the pipeline on it.
func (p *Pipeline) Submit(ctx context.Context, r types.SensorReading) Outcome {
	if r.Timestamp.IsZero() {
		r.Timestamp = p.now()
	}
	p.readings.Put(r)
	return p.OnReading(ctx, r)
}

// CheckNow re-runs the pipeline on the latest known reading of sensorID.
func (p *Pipeline) CheckNow(ctx context.Context, sensorID string) Outcome {
	r, ok := p.readings.Latest(sensorID)
	if !ok {
		return p.finish(Outcome{SensorID: sensorID}, StatusNoReading, "no reading known for sensor")
	}
	return p.OnReading(ctx, r)
}

// OnReading runs the full pipeline for one reading. It never fails: every
// short-circuit is reported through the returned Outcome.
func (p *Pipeline) OnReading(ctx context.Context, r types.SensorReading) Outcome {
	out := Outcome{SensorID: r.SensorID}
	log := slog.With("sensor", r.SensorID)

	plant, err := p.plants.PlantBySensor(ctx, r.SensorID)
	if err != nil {
		log.Warn("alerts: plant lookup failed", "err", err)
		return p.finish(out, StatusError, "plant lookup failed: "+err.Error())
	}
	if plant == nil {
		log.Info("alerts: no plant bound to sensor, skipping reading")
		return p.finish(out, StatusUnbound, "no plant bound to sensor")
	}
	out.PlantID = plant.ID
	log = log.With("plant", plant.ID)

	th, err := p.resolver.Resolve(ctx, *plant)
	if errors.Is(err, ErrNotFound) {
		log.Info("alerts: no thresholds for plant, skipping reading", "reason", err)
		return p.finish(out, StatusUnresolved, err.Error())
	}
	if err != nil {
		log.Warn("alerts: threshold resolution failed", "err", err)
		return p.finish(out, StatusError, err.Error())
	}

	violations := Evaluate(r, th)
	if len(violations) == 0 {
		log.Debug("alerts: reading in range", "stage", th.Stage)
		return p.finish(out, StatusInRange, "")
	}
	for _, v := range violations {
		metrics.Violations.WithLabelValues(v.Parameter, string(v.Direction)).Inc()
	}
	out.Violations = violations

	vs := types.ViolationSet{
		PlantID:    plant.ID,
		PlantName:  th.PlantName,
		Stage:      th.Stage,
		Violations: violations,
	}
	dec := p.dedup.ShouldNotify(ctx, vs, r.Timestamp)
	out.Identity = dec.Identity
	if !dec.Proceed {
		log.Info("alerts: alert already notified within window", "identity", dec.Identity)
		return p.finish(out, StatusSuppressed, "already notified within suppression window")
	}

	// The identity is reserved from here on. A caller that disconnects must
	// not leave a record for an alert nobody received, so the remaining I/O
	// is bounded by its own timeouts only.
	ctx = context.WithoutCancel(ctx)

	rt := p.rt.Load()
	msg := rt.formatter.Format(*plant, th, vs, r.Timestamp)
	out.Message = msg

	recipients, err := p.recipients.RecipientsByRoles(ctx, rt.settings.EligibleRoles)
	if err != nil {
		p.dedup.Release(dec.Identity)
		log.Warn("alerts: recipient lookup failed", "err", err)
		return p.finish(out, StatusError, "recipient lookup failed: "+err.Error())
	}
	recipients = Eligible(recipients)
	if len(recipients) == 0 {
		p.dedup.Release(dec.Identity)
		log.Warn("alerts: no eligible recipients", "roles", rt.settings.EligibleRoles)
		return p.finish(out, StatusNoRecipients, "no eligible recipients")
	}

	report := rt.dispatcher.Dispatch(ctx, msg, recipients)
	out.Report = &report
	if report.Failed > 0 {
		log.Warn("alerts: some recipients were not notified",
			"sent", report.Sent, "failed", report.Failed)
	}

	rec := types.AlertRecord{
		Identity:         dec.Identity,
		PlantID:          plant.ID,
		PlantName:        th.PlantName,
		PlotNumber:       plant.PlotNumber,
		Stage:            th.Stage,
		SensorID:         r.SensorID,
		ReadingTimestamp: r.Timestamp,
		Violations:       violations,
		Recipients:       report.Outcomes,
		Message:          msg,
		SentAt:           p.now(),
	}
	// Record logs its own failure; the message is already out.
	_ = p.dedup.Record(ctx, rec)
	if p.publisher != nil {
		p.publisher.Publish(ctx, rec)
	}

	log.Info("alerts: alert dispatched",
		"identity", dec.Identity, "violations", len(violations),
		"sent", report.Sent, "failed", report.Failed)
	return p.finish(out, StatusDispatched, "")
}

func (p *Pipeline) finish(out Outcome, s Status, reason string) Outcome {
	out.Status = s
	out.Reason = reason
	metrics.Outcomes.WithLabelValues(string(s)).Inc()
	return out
}

// RunCleanup periodically deletes records older than retention and drops
// expired cache entries. It blocks until ctx is cancelled.
func (p *Pipeline) RunCleanup(ctx context.Context, interval, retention time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Cleanup(ctx, retention)
		}
	}
}

// Cleanup runs one cleanup pass.
func (p *Pipeline) Cleanup(ctx context.Context, retention time.Duration) {
	n, err := p.records.DeleteBefore(ctx, p.now().Add(-retention))
	if err != nil {
		slog.Warn("alerts: record cleanup failed", "err", err)
	} else if n > 0 {
		slog.Info("alerts: deleted expired alert records", "count", n)
	}
	p.resolver.Purge()
	p.dedup.Purge()
}
