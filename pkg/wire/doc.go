// Package wire defines the agent-to-server ingestion contract.
//
// ReadingService has a single unary method, SubmitReading. Over gRPC the
// request and response travel as google.protobuf.Struct messages whose
// fields mirror the JSON body that HTTP and MQTT clients send:
//
//	{
//	  "sensorId":   "sensor-1",
//	  "parameters": {"nitrogen": 12.5, "ph": "6.4"},
//	  "timestamp":  "2024-06-01T08:00:00+08:00"
//	}
//
// Parameter values may be numbers or numeric strings; anything else is
// dropped. Timestamps are ISO-8601; an empty timestamp means "now" on the
// server. The HTTP API accepts the same body.
package wire
