// Package ingest subscribes to sensor readings published over MQTT.
//
// Gateways publish one JSON reading per message (the wire.SubmitRequest
// shape) to topics such as soilwatch/sensors/<sensor-id>/readings. When the
// payload has no sensorId, the topic segment matched by the first "+" of the
// subscription filter is used instead. Every reading goes through the same
// pipeline entry point as the HTTP and gRPC paths.
package ingest
