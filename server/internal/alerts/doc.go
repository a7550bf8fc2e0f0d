// Package alerts implements the soil threshold-alerting pipeline: stage
// threshold resolution with a TTL cache, reading evaluation, alert identity
// and suppression, SMS message formatting and concurrent recipient dispatch.
//
// Pipeline.OnReading is the single orchestration entry point. HTTP submission,
// manual re-checks, gRPC and the MQTT subscription all converge on it, and it
// reports every result as an Outcome value rather than an error.
package alerts
