package api

import (
	"testing"
	"time"

	"github.com/soilwatch/soilwatch/pkg/types"
)

func keys(hints []DiagnosticHint) []string {
	out := make([]string, 0, len(hints))
	for _, h := range hints {
		out = append(out, h.Key)
	}
	return out
}

func TestComputeDiagnostics_Healthy(t *testing.T) {
	now := time.Now()
	r := types.SensorReading{
		SensorID: "s",
		Parameters: map[string]float64{
			types.Nitrogen: 12, types.Phosphorus: 15, types.Potassium: 20, types.PH: 6.5,
		},
		Timestamp: now,
	}
	hints := computeDiagnostics(r, now, now)
	if len(hints) != 1 || hints[0].Level != "ok" {
		t.Errorf("hints: got %v, want single ok", keys(hints))
	}
}

func TestComputeDiagnostics_OrderedBySeverity(t *testing.T) {
	now := time.Now()
	r := types.SensorReading{
		SensorID:   "s",
		Parameters: map[string]float64{types.Humidity: 140},
		Timestamp:  now.Add(-2 * time.Hour),
	}
	hints := computeDiagnostics(r, now, now)
	got := keys(hints)
	want := []string{"implausible_humidity", "stale", "missing_parameters"}
	if len(got) != len(want) {
		t.Fatalf("hints: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("hint %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestComputeDiagnostics_ClockAhead(t *testing.T) {
	now := time.Now()
	r := types.SensorReading{
		SensorID: "s",
		Parameters: map[string]float64{
			types.Nitrogen: 12, types.Phosphorus: 15, types.Potassium: 20, types.PH: 6.5,
		},
		Timestamp: now.Add(time.Hour),
	}
	hints := computeDiagnostics(r, now, now)
	if len(hints) != 1 || hints[0].Key != "clock_ahead" {
		t.Errorf("hints: got %v, want clock_ahead", keys(hints))
	}
}
