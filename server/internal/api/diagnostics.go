package api

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/soilwatch/soilwatch/pkg/types"
)

const (
	staleAfter   = 30 * time.Minute
	maxClockSkew = 5 * time.Minute
)

// DiagnosticHint is one human-readable insight about a sensor's last reading.
// The dashboard shows these as chips on the sensor card; Detail is the
// explanation shown on click.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip.
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// plausible is the physically possible range per parameter. Values outside
// point at a faulty probe rather than at the soil.
var plausible = map[string][2]float64{
	types.Nitrogen:     {0, 10000},
	types.Phosphorus:   {0, 10000},
	types.Potassium:    {0, 10000},
	types.PH:           {0, 14},
	types.Temperature:  {-40, 80},
	types.Humidity:     {0, 100},
	types.Moisture:     {0, 100},
	types.Conductivity: {0, 20000},
}

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// computeDiagnostics derives hints about the health of a sensor from its
// latest reading. Hints are ordered critical first, then warnings, then info.
func computeDiagnostics(r types.SensorReading, receivedAt, now time.Time) []DiagnosticHint {
	var hints []DiagnosticHint

	// ── Implausible values ───────────────────────────────────────────────────
	names := make([]string, 0, len(r.Parameters))
	for p := range r.Parameters {
		names = append(names, p)
	}
	sort.Strings(names)
	for _, p := range names {
		rng, ok := plausible[p]
		v := r.Parameters[p]
		if !ok || (v >= rng[0] && v <= rng[1]) {
			continue
		}
		val := v
		hints = append(hints, DiagnosticHint{
			Key:   "implausible_" + p,
			Level: "critical",
			Title: fmt.Sprintf("Implausible %s", p),
			Detail: fmt.Sprintf(
				"The sensor reported %s = %g, outside the physically possible range %g to %g. "+
					"This usually means a damaged probe, a loose connector or a miscalibrated unit. "+
					"Alerts computed from this value are not trustworthy until the sensor is checked.",
				p, v, rng[0], rng[1]),
			Value: &val,
		})
	}

	// ── Staleness ────────────────────────────────────────────────────────────
	if age := now.Sub(r.Timestamp); !r.Timestamp.IsZero() && age > staleAfter {
		mins := age.Minutes()
		hints = append(hints, DiagnosticHint{
			Key:   "stale",
			Level: "warning",
			Title: "No recent reading",
			Detail: fmt.Sprintf(
				"The last reading was taken %.0f minutes ago. The sensor may have lost power "+
					"or connectivity, so threshold checks are running on old data.", mins),
			Value: &mins,
		})
	}

	// ── Clock skew ───────────────────────────────────────────────────────────
	if skew := r.Timestamp.Sub(receivedAt); skew > maxClockSkew {
		secs := skew.Seconds()
		hints = append(hints, DiagnosticHint{
			Key:   "clock_ahead",
			Level: "warning",
			Title: "Sensor clock ahead",
			Detail: fmt.Sprintf(
				"The reading is stamped %.0f seconds after the server received it. "+
					"Check the gateway's NTP settings; a wrong clock shifts suppression windows.", secs),
			Value: &secs,
		})
	}

	// ── Coverage ─────────────────────────────────────────────────────────────
	var missing []string
	for _, p := range []string{types.Nitrogen, types.Phosphorus, types.Potassium, types.PH} {
		if _, ok := r.Parameters[p]; !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "missing_parameters",
			Level: "info",
			Title: "Partial reading",
			Detail: fmt.Sprintf(
				"This sensor does not report %s. Those thresholds cannot be checked for its plant.",
				strings.Join(missing, ", ")),
		})
	}

	if len(hints) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:    "ok",
			Level:  "ok",
			Title:  "Reporting normally",
			Detail: "Readings are fresh and every value is within its physical range.",
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank[hints[i].Level] < levelRank[hints[j].Level]
	})
	return hints
}
