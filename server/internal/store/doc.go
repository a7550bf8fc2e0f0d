// Package store holds the latest known reading per sensor in memory. It is a
// thread-safe map keyed by sensor id with TTL eviction, used by the manual
// re-check path and the sensor lookup endpoint.
package store
