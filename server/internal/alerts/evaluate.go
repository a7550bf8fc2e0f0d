package alerts

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/soilwatch/soilwatch/pkg/types"
)

// parameterOrder fixes the order violations are reported in, independent of
// map iteration. Identity hashing sorts its own tokens, but messages and
// records rely on this order being stable.
var parameterOrder = []string{
	types.Nitrogen,
	types.Phosphorus,
	types.Potassium,
	types.PH,
	types.Temperature,
	types.Humidity,
	types.Moisture,
	types.Conductivity,
}

// aliases maps a reading parameter to the threshold it is evaluated against
// when the threshold set has no bound of its own for it.
var aliases = map[string]string{
	types.Moisture: types.Humidity,
}

var units = map[string]string{
	types.Nitrogen:     "mg/kg",
	types.Phosphorus:   "mg/kg",
	types.Potassium:    "mg/kg",
	types.Temperature:  "°C",
	types.Humidity:     "%",
	types.Moisture:     "%",
	types.Conductivity: "µS/cm",
}

var labels = map[string]string{
	types.Nitrogen:     "Nitrogen",
	types.Phosphorus:   "Phosphorus",
	types.Potassium:    "Potassium",
	types.PH:           "pH",
	types.Temperature:  "Temperature",
	types.Humidity:     "Humidity",
	types.Moisture:     "Moisture",
	types.Conductivity: "Conductivity",
}

// NormalizeParameter returns the canonical name of a reading parameter.
func NormalizeParameter(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Evaluate compares every parameter present in both the reading and the
// threshold set against its inclusive [min, max] range. Non-finite values are
// skipped. The result is empty when the reading is in range.
//
// When several keys normalise to one parameter, the key already in canonical
// form wins, otherwise the smallest key.
func Evaluate(r types.SensorReading, th types.StageThresholds) []types.Violation {
	keys := make([]string, 0, len(r.Parameters))
	for k := range r.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make(map[string]float64, len(r.Parameters))
	for _, k := range keys {
		v := r.Parameters[k]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		name := NormalizeParameter(k)
		if _, taken := values[name]; taken && k != name {
			continue
		}
		values[name] = v
	}

	var out []types.Violation
	for _, p := range evaluationOrder(values) {
		b, ok := boundFor(p, values, th.Bounds)
		if !ok {
			continue
		}
		v := values[p]
		switch {
		case v < b.Min:
			out = append(out, newViolation(p, v, types.Below, b.Min, b.Unit))
		case v > b.Max:
			out = append(out, newViolation(p, v, types.Above, b.Max, b.Unit))
		}
	}
	return out
}

// evaluationOrder lists the parameters of values in parameterOrder, followed
// by any others sorted by name.
func evaluationOrder(values map[string]float64) []string {
	known := make(map[string]bool, len(parameterOrder))
	order := make([]string, 0, len(values))
	for _, p := range parameterOrder {
		known[p] = true
		if _, ok := values[p]; ok {
			order = append(order, p)
		}
	}
	var extra []string
	for p := range values {
		if !known[p] {
			extra = append(extra, p)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}

// boundFor finds the bound for parameter p. An alias applies only when the
// threshold set lacks p and the reading does not carry the alias target itself.
func boundFor(p string, values map[string]float64, bounds map[string]types.Bound) (types.Bound, bool) {
	if b, ok := bounds[p]; ok {
		return b, true
	}
	target, ok := aliases[p]
	if !ok {
		return types.Bound{}, false
	}
	if _, has := values[target]; has {
		return types.Bound{}, false
	}
	b, ok := bounds[target]
	if ok && b.Unit == "" {
		b.Unit = units[p]
	}
	return b, ok
}

func newViolation(p string, v float64, dir types.Direction, bound float64, unit string) types.Violation {
	word, limit := "LOW", "min"
	if dir == types.Above {
		word, limit = "HIGH", "max"
	}
	return types.Violation{
		Parameter: p,
		Value:     v,
		Direction: dir,
		Bound:     bound,
		Unit:      unit,
		Message: fmt.Sprintf("%s is %s: %s (%s %s)",
			label(p), word, withUnit(v, unit), limit, withUnit(bound, unit)),
	}
}

func label(p string) string {
	if l, ok := labels[p]; ok {
		return l
	}
	return p
}

// withUnit renders v with at most two decimals followed by its unit.
func withUnit(v float64, unit string) string {
	s := strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
	switch {
	case unit == "":
		return s
	case strings.HasPrefix(unit, "°"), unit == "%":
		return s + unit
	default:
		return s + " " + unit
	}
}
