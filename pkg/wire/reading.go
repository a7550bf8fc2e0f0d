package wire

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"

	"github.com/soilwatch/soilwatch/pkg/types"
)

var (
	// ErrMissingSensorID is returned for a request without a sensor id.
	ErrMissingSensorID = errors.New("sensorId is required")
	// ErrDuplicateParameter is returned when two parameter keys name the same
	// parameter once case and surrounding space are ignored.
	ErrDuplicateParameter = errors.New("duplicate parameter")
)

// SubmitRequest is one sensor reading as sent by agents and gateways.
type SubmitRequest struct {
	SensorID   string                 `json:"sensorId"`
	Parameters map[string]interface{} `json:"parameters"`
	Timestamp  string                 `json:"timestamp,omitempty"`
}

// SubmitResponse reports what the server did with a reading.
type SubmitResponse struct {
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Identity   string `json:"identity,omitempty"`
	Violations int    `json:"violations"`
}

// NewSubmitRequest builds a request from a reading. A zero timestamp is
// left empty for the server to fill.
func NewSubmitRequest(r types.SensorReading) *SubmitRequest {
	params := make(map[string]interface{}, len(r.Parameters))
	for k, v := range r.Parameters {
		params[k] = v
	}
	req := &SubmitRequest{SensorID: r.SensorID, Parameters: params}
	if !r.Timestamp.IsZero() {
		req.Timestamp = r.Timestamp.Format(time.RFC3339Nano)
	}
	return req
}

// Reading validates req and converts it. Parameter names are lower-cased
// and trimmed; non-numeric and non-finite values are dropped. Keys such as
// "pH" and "ph" in one request are rejected with ErrDuplicateParameter.
func (req *SubmitRequest) Reading() (types.SensorReading, error) {
	id := strings.TrimSpace(req.SensorID)
	if id == "" {
		return types.SensorReading{}, ErrMissingSensorID
	}

	r := types.SensorReading{
		SensorID:   id,
		Parameters: make(map[string]float64, len(req.Parameters)),
	}
	seen := make(map[string]string, len(req.Parameters))
	for k, raw := range req.Parameters {
		name := strings.ToLower(strings.TrimSpace(k))
		if prev, dup := seen[name]; dup {
			a, b := prev, k
			if a > b {
				a, b = b, a
			}
			return types.SensorReading{}, fmt.Errorf("%w: %q and %q", ErrDuplicateParameter, a, b)
		}
		seen[name] = k
		if v, ok := toFloat(raw); ok {
			r.Parameters[name] = v
		}
	}

	if ts := strings.TrimSpace(req.Timestamp); ts != "" {
		t, err := iso8601.ParseString(ts)
		if err != nil {
			return types.SensorReading{}, fmt.Errorf("timestamp %q: %w", ts, err)
		}
		r.Timestamp = t
	}
	return r, nil
}

func toFloat(raw interface{}) (float64, bool) {
	var v float64
	switch x := raw.(type) {
	case float64:
		v = x
	case int:
		v = float64(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
