// Package sms delivers alert text to handsets.
//
// Gateway posts each message as JSON ({to, from, text}) to an HTTP SMS
// provider with a bearer token; any 2xx response counts as accepted. A
// circuit breaker stops hammering a provider that keeps failing. LogSender
// only logs, for local runs without a provider.
package sms
