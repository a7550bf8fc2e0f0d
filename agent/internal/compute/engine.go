package compute

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/soilwatch/soilwatch/agent/internal/scraper"
	"github.com/soilwatch/soilwatch/pkg/types"
)

// uptimeWindow is the number of recent scrape outcomes tracked for uptime %.
const uptimeWindow = 20

// epsilon is the smallest parameter change treated as a new value.
const epsilon = 1e-9

// Gateway states derived from recent scrape outcomes.
const (
	StateUp       = "up"
	StateDegraded = "degraded"
	StateDown     = "down"
)

// degradedBelow is the uptime % under which a reachable gateway is degraded.
const degradedBelow = 90.0

// Result is what one scrape cycle produced for one gateway.
type Result struct {
	GatewayID string
	Timestamp time.Time
	State     string
	UptimePct float64

	// Changed holds the readings that must be shipped: new sensors, changed
	// values, or unchanged sensors whose heartbeat is due.
	Changed []types.SensorReading

	// Unchanged counts readings skipped because nothing moved.
	Unchanged int

	// ErrorMessage is non-empty when the scrape failed.
	ErrorMessage string
}

// Engine keeps per-gateway uptime history and the last shipped reading of
// every sensor so that only changed readings leave the agent.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	mu        sync.Mutex
	heartbeat time.Duration
	gateways  map[string]*gatewayState
	sensors   map[string]*sensorState
}

type gatewayState struct {
	history []bool // scrape outcomes, newest last
}

type sensorState struct {
	params  map[string]float64
	shipped time.Time
}

// NewEngine returns an Engine that re-ships unchanged readings once
// heartbeat has elapsed since they were last shipped.
func NewEngine(heartbeat time.Duration) *Engine {
	return &Engine{
		heartbeat: heartbeat,
		gateways:  make(map[string]*gatewayState),
		sensors:   make(map[string]*sensorState),
	}
}

// Process ingests a ScrapeResult and returns the readings to ship.
//
// now is passed explicitly so callers (and tests) control the clock without
// sleeping. Use time.Now() in production.
func (e *Engine) Process(res *scraper.ScrapeResult, now time.Time) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	gs := e.gatewayFor(res.GatewayID)
	success := res.Err == nil
	gs.record(success)

	out := &Result{
		GatewayID: res.GatewayID,
		Timestamp: now,
		UptimePct: gs.uptimePct(),
	}

	if !success {
		slog.Warn("compute: gateway scrape failed",
			"gateway", res.GatewayID, "err", res.Err)
		out.State = StateDown
		out.ErrorMessage = res.Err.Error()
		return out
	}

	out.State = StateUp
	if out.UptimePct < degradedBelow {
		out.State = StateDegraded
	}

	for _, r := range res.Readings {
		if e.changed(r, now) {
			out.Changed = append(out.Changed, r)
			continue
		}
		out.Unchanged++
	}
	return out
}

// changed reports whether r must be shipped and, if so, records it as the
// sensor's last shipped reading.
func (e *Engine) changed(r types.SensorReading, now time.Time) bool {
	st, ok := e.sensors[r.SensorID]
	if ok && now.Sub(st.shipped) < e.heartbeat && sameParams(st.params, r.Parameters) {
		return false
	}
	params := make(map[string]float64, len(r.Parameters))
	for k, v := range r.Parameters {
		params[k] = v
	}
	e.sensors[r.SensorID] = &sensorState{params: params, shipped: now}
	return true
}

// Forget drops the shipped state of a sensor so its next reading is shipped
// regardless of value. Used when a send is discarded.
func (e *Engine) Forget(sensorID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sensors, sensorID)
}

// Sensors returns the number of sensors with shipped state.
func (e *Engine) Sensors() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sensors)
}

func sameParams(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || math.Abs(av-bv) > epsilon {
			return false
		}
	}
	return true
}

func (e *Engine) gatewayFor(id string) *gatewayState {
	if gs, ok := e.gateways[id]; ok {
		return gs
	}
	gs := &gatewayState{}
	e.gateways[id] = gs
	return gs
}

func (gs *gatewayState) record(success bool) {
	if len(gs.history) >= uptimeWindow {
		gs.history = gs.history[1:]
	}
	gs.history = append(gs.history, success)
}

func (gs *gatewayState) uptimePct() float64 {
	if len(gs.history) == 0 {
		return 100 // assume up before first observation
	}
	var ok int
	for _, s := range gs.history {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(gs.history)) * 100
}
