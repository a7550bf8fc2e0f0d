// Package events fans delivered alert records out to downstream consumers.
//
// KafkaPublisher writes one JSON event per delivered alert to a Kafka topic,
// keyed by plant so a plant's alerts stay ordered within a partition.
// Publishing is asynchronous and never blocks the alerting path: when the
// queue is full the event is dropped and counted.
package events
