// Package security inspects the TLS certificates of HTTPS gateways and
// warns before they expire.
package security
