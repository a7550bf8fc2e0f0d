package wire

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/soilwatch/soilwatch/pkg/types"
)

func TestReading_TolerantDecode(t *testing.T) {
	var req SubmitRequest
	body := `{"sensorId":" s-1 ","parameters":{"Nitrogen":12.5,"ph":"6.4","note":"dry","flag":true},
		"timestamp":"2024-06-01T16:00:00+08:00"}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	r, err := req.Reading()
	if err != nil {
		t.Fatalf("Reading: %v", err)
	}
	if r.SensorID != "s-1" {
		t.Errorf("sensor: got %q, want s-1", r.SensorID)
	}
	if len(r.Parameters) != 2 || r.Parameters[types.Nitrogen] != 12.5 || r.Parameters[types.PH] != 6.4 {
		t.Errorf("parameters: got %v, want nitrogen=12.5 ph=6.4", r.Parameters)
	}
	if want := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC); !r.Timestamp.Equal(want) {
		t.Errorf("timestamp: got %v, want %v", r.Timestamp, want)
	}
}

func TestReading_Errors(t *testing.T) {
	if _, err := (&SubmitRequest{}).Reading(); !errors.Is(err, ErrMissingSensorID) {
		t.Errorf("missing id: got %v, want ErrMissingSensorID", err)
	}
	if _, err := (&SubmitRequest{SensorID: "s", Timestamp: "yesterday"}).Reading(); err == nil {
		t.Error("bad timestamp: expected error, got nil")
	}
}

func TestReading_EmptyTimestampLeftZero(t *testing.T) {
	r, err := (&SubmitRequest{SensorID: "s"}).Reading()
	if err != nil {
		t.Fatalf("Reading: %v", err)
	}
	if !r.Timestamp.IsZero() {
		t.Errorf("timestamp: got %v, want zero", r.Timestamp)
	}
}

func TestNewSubmitRequest_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	req := NewSubmitRequest(types.SensorReading{
		SensorID:   "s-1",
		Parameters: map[string]float64{types.Moisture: 33},
		Timestamp:  ts,
	})
	raw, _ := json.Marshal(req)

	var back SubmitRequest
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	r, err := back.Reading()
	if err != nil {
		t.Fatalf("Reading: %v", err)
	}
	if r.Parameters[types.Moisture] != 33 || !r.Timestamp.Equal(ts) {
		t.Errorf("round trip: got %+v", r)
	}
}

func TestReading_DuplicateParameterRejected(t *testing.T) {
	var req SubmitRequest
	body := `{"sensorId":"s-1","parameters":{"pH":6.1,"ph":7.9,"nitrogen":12}}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, err := req.Reading(); !errors.Is(err, ErrDuplicateParameter) {
		t.Errorf("pH and ph: got %v, want ErrDuplicateParameter", err)
	}

	req.Parameters = map[string]interface{}{" Moisture ": 30, "moisture": "dry"}
	if _, err := req.Reading(); !errors.Is(err, ErrDuplicateParameter) {
		t.Errorf("moisture twice: got %v, want ErrDuplicateParameter", err)
	}
}

func TestProto_RequestCarriesBodyFields(t *testing.T) {
	req := &SubmitRequest{
		SensorID:   "s-1",
		Parameters: map[string]interface{}{"nitrogen": 12.5, "ph": "6.4", "flag": true},
		Timestamp:  "2024-06-01T16:00:00+08:00",
	}
	s, err := req.toProto()
	if err != nil {
		t.Fatalf("toProto: %v", err)
	}
	r, err := requestFromProto(s).Reading()
	if err != nil {
		t.Fatalf("Reading: %v", err)
	}
	if r.SensorID != "s-1" || len(r.Parameters) != 2 || r.Parameters[types.PH] != 6.4 {
		t.Errorf("reading: got %+v", r)
	}
	if want := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC); !r.Timestamp.Equal(want) {
		t.Errorf("timestamp: got %v, want %v", r.Timestamp, want)
	}
}

func TestProto_UnsupportedParameterValue(t *testing.T) {
	req := &SubmitRequest{SensorID: "s-1", Parameters: map[string]interface{}{"ph": struct{}{}}}
	if _, err := req.toProto(); err == nil {
		t.Error("struct value: expected encode error, got nil")
	}
}

func TestProto_Response(t *testing.T) {
	in := &SubmitResponse{Status: "dispatched", Identity: "abc", Violations: 2}
	got := responseFromProto(in.toProto())
	if *got != *in {
		t.Errorf("response: got %+v, want %+v", got, in)
	}
}
