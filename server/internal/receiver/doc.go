// Package receiver implements wire.ReadingServiceServer, the gRPC endpoint
// that accepts sensor readings from soilwatch-agent instances and gateways.
//
// Receiver.SubmitReading validates the request (codes.InvalidArgument for a
// missing sensor id or an unparsable timestamp) and submits the reading to
// the alert pipeline, answering with the pipeline's outcome. Authentication
// is enforced upstream by the gRPC server interceptor (see package auth).
package receiver
