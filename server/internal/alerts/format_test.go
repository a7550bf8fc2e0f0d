package alerts

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/soilwatch/soilwatch/pkg/types"
)

func sampleSet() (types.Plant, types.StageThresholds, types.ViolationSet) {
	th := thresholds(map[string]types.Bound{types.Nitrogen: {Min: 10, Max: 25, Unit: "mg/kg"}})
	vs := types.ViolationSet{
		PlantID:   "plant-1",
		PlantName: "Chilli",
		Stage:     "Seedling",
		Violations: []types.Violation{
			newViolation(types.Nitrogen, 5, types.Below, 10, "mg/kg"),
			newViolation(types.Temperature, 41.2, types.Above, 32, "°C"),
		},
	}
	return *chilliPlant(), th, vs
}

func TestFormat_Layout(t *testing.T) {
	plant, th, vs := sampleSet()
	msg := Formatter{}.Format(plant, th, vs, t0)

	want := strings.Join([]string{
		"SOIL ALERT: Chilli (Plot A3, Zone North)",
		"Stage: Seedling",
		"Time: 2024-06-01 08:00 UTC",
		"1. Nitrogen is LOW: 5 mg/kg (min 10 mg/kg)",
		"2. Temperature is HIGH: 41.2°C (max 32°C)",
		closingLine,
	}, "\n")
	if msg != want {
		t.Errorf("message:\ngot  %q\nwant %q", msg, want)
	}
}

func TestFormat_Timezone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kuala_Lumpur")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	plant, th, vs := sampleSet()
	msg := Formatter{Location: loc}.Format(plant, th, vs, t0)
	if !strings.Contains(msg, "Time: 2024-06-01 16:00 +08") {
		t.Errorf("message: got %q, want local time 16:00 +08", msg)
	}
}

func TestFormat_FallsBackToPlantType(t *testing.T) {
	plant, th, vs := sampleSet()
	th.PlantName = ""
	plant.PlotNumber, plant.LocationZone = "", ""
	msg := Formatter{}.Format(plant, th, vs, t0)
	if !strings.HasPrefix(msg, "SOIL ALERT: Chilli\n") {
		t.Errorf("header: got %q", strings.SplitN(msg, "\n", 2)[0])
	}
}

func TestFormat_Truncates(t *testing.T) {
	plant, th, vs := sampleSet()
	msg := Formatter{MaxLength: 40}.Format(plant, th, vs, t0)

	if n := utf8.RuneCountInString(msg); n != 40 {
		t.Errorf("length: got %d runes, want 40", n)
	}
	if !strings.HasSuffix(msg, "...") {
		t.Errorf("message: got %q, want trailing ...", msg)
	}
}

func TestTruncate_RuneSafe(t *testing.T) {
	s := strings.Repeat("°", 10)
	got := truncate(s, 6)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate produced invalid UTF-8: %q", got)
	}
	if got != "°°°..." {
		t.Errorf("truncate: got %q, want °°°...", got)
	}
	if truncate("short", 10) != "short" {
		t.Error("truncate: short string changed")
	}
}
