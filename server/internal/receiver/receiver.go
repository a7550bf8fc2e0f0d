package receiver

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/soilwatch/soilwatch/pkg/types"
	"github.com/soilwatch/soilwatch/pkg/wire"
	"github.com/soilwatch/soilwatch/server/internal/alerts"
	"github.com/soilwatch/soilwatch/server/internal/metrics"
)

// Submitter runs the alert pipeline on one reading.
type Submitter interface {
	Submit(ctx context.Context, r types.SensorReading) alerts.Outcome
}

// Receiver implements wire.ReadingServiceServer.
// It validates each incoming reading and hands it to the alert pipeline.
type Receiver struct {
	pipeline Submitter
}

// New creates a Receiver that submits accepted readings to p.
func New(p Submitter) *Receiver {
	return &Receiver{pipeline: p}
}

// SubmitReading is the unary RPC handler called by soilwatch-agent instances
// and gateways. Authentication is enforced by the gRPC server interceptor
// before this is called.
func (r *Receiver) SubmitReading(ctx context.Context, req *wire.SubmitRequest) (*wire.SubmitResponse, error) {
	reading, err := req.Reading()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	metrics.Readings.WithLabelValues("grpc").Inc()

	out := r.pipeline.Submit(ctx, reading)

	slog.Debug("receiver: reading processed",
		"sensor", reading.SensorID,
		"parameters", len(reading.Parameters),
		"status", out.Status,
	)
	return Response(out), nil
}

// Response converts a pipeline outcome to its wire form.
func Response(out alerts.Outcome) *wire.SubmitResponse {
	return &wire.SubmitResponse{
		Status:     string(out.Status),
		Reason:     out.Reason,
		Identity:   out.Identity,
		Violations: len(out.Violations),
	}
}
