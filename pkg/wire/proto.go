package wire

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

// On the wire both messages are google.protobuf.Struct, so gRPC uses its
// default proto codec and the field names match the JSON body.

// toProto encodes req as a Struct.
func (req *SubmitRequest) toProto() (*structpb.Struct, error) {
	params := make(map[string]interface{}, len(req.Parameters))
	for k, v := range req.Parameters {
		params[k] = v
	}
	fields := map[string]interface{}{
		"sensorId":   req.SensorID,
		"parameters": params,
	}
	if req.Timestamp != "" {
		fields["timestamp"] = req.Timestamp
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode reading: %w", err)
	}
	return s, nil
}

// requestFromProto decodes a Struct written by toProto. Fields of the wrong
// kind are left empty for Reading to reject or drop.
func requestFromProto(s *structpb.Struct) *SubmitRequest {
	req := &SubmitRequest{}
	f := s.GetFields()
	req.SensorID = f["sensorId"].GetStringValue()
	req.Timestamp = f["timestamp"].GetStringValue()
	if p := f["parameters"].GetStructValue(); p != nil {
		req.Parameters = p.AsMap()
	}
	return req
}

func (resp *SubmitResponse) toProto() *structpb.Struct {
	f := map[string]*structpb.Value{
		"status":     structpb.NewStringValue(resp.Status),
		"violations": structpb.NewNumberValue(float64(resp.Violations)),
	}
	if resp.Reason != "" {
		f["reason"] = structpb.NewStringValue(resp.Reason)
	}
	if resp.Identity != "" {
		f["identity"] = structpb.NewStringValue(resp.Identity)
	}
	return &structpb.Struct{Fields: f}
}

func responseFromProto(s *structpb.Struct) *SubmitResponse {
	f := s.GetFields()
	n := f["violations"].GetNumberValue()
	if math.IsNaN(n) || n < 0 {
		n = 0
	}
	return &SubmitResponse{
		Status:     f["status"].GetStringValue(),
		Reason:     f["reason"].GetStringValue(),
		Identity:   f["identity"].GetStringValue(),
		Violations: int(n),
	}
}
