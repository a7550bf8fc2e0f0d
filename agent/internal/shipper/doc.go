// Package shipper submits sensor readings to soilwatch-server over gRPC
// (ReadingService.SubmitReading, JSON codec from pkg/wire).
//
// Shipper.Ship() is non-blocking: readings are placed in an in-memory channel
// (default capacity 1000). When the buffer is full the oldest entry is
// evicted so the latest readings are always preserved.
//
// Shipper.Run() drains the buffer in a loop, reconnecting with truncated
// exponential backoff (1s→60s, ±25% jitter) on connection or send errors.
// Permanent gRPC errors (Unauthenticated, PermissionDenied, InvalidArgument)
// discard the reading immediately rather than retrying. Every reading that
// never reached the server is reported to the onLost callback.
//
// Auth: mTLS via credentials.NewTLS(), API key via gRPC metadata header,
// or insecure (plaintext) for local development.
package shipper
