package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/soilwatch/soilwatch/pkg/types"
)

const (
	closingLine = "Please inspect the plot and take corrective action."
	ellipsis    = "..."
)

// Formatter renders violation sets into SMS text. MaxLength counts
// characters (runes); zero disables truncation.
type Formatter struct {
	MaxLength int
	Location  *time.Location
}

// Format renders the header, one numbered line per violation and the closing
// instruction. Text over MaxLength is cut and ends in "...".
func (f Formatter) Format(plant types.Plant, th types.StageThresholds, vs types.ViolationSet, at time.Time) string {
	name := th.PlantName
	if name == "" {
		name = plant.PlantType
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SOIL ALERT: %s", name)
	if where := placeOf(plant); where != "" {
		fmt.Fprintf(&b, " (%s)", where)
	}
	fmt.Fprintf(&b, "\nStage: %s", th.Stage)
	fmt.Fprintf(&b, "\nTime: %s", at.In(f.location()).Format("2006-01-02 15:04 MST"))
	for i, v := range vs.Violations {
		fmt.Fprintf(&b, "\n%d. %s", i+1, v.Message)
	}
	b.WriteString("\n" + closingLine)

	return truncate(b.String(), f.MaxLength)
}

func (f Formatter) location() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

func placeOf(p types.Plant) string {
	var parts []string
	if p.PlotNumber != "" {
		parts = append(parts, "Plot "+p.PlotNumber)
	}
	if p.LocationZone != "" {
		parts = append(parts, "Zone "+p.LocationZone)
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	keep := max - len(ellipsis)
	if keep < 0 {
		keep = 0
	}
	return string(r[:keep]) + ellipsis
}
