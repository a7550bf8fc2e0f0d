package receiver_test

import (
	"context"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/soilwatch/soilwatch/pkg/types"
	"github.com/soilwatch/soilwatch/pkg/wire"
	"github.com/soilwatch/soilwatch/server/internal/alerts"
	"github.com/soilwatch/soilwatch/server/internal/auth"
	"github.com/soilwatch/soilwatch/server/internal/receiver"
)

// recorder is a Submitter that keeps every reading and answers with a
// fixed outcome.
type recorder struct {
	mu       sync.Mutex
	readings []types.SensorReading
	outcome  alerts.Outcome
}

func (r *recorder) Submit(_ context.Context, rd types.SensorReading) alerts.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readings = append(r.readings, rd)
	out := r.outcome
	out.SensorID = rd.SensorID
	return out
}

func (r *recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.readings)
}

// startServer starts a gRPC server with the given interceptor and returns a
// connected client. Uses a random TCP port.
func startServer(t *testing.T, interceptor grpc.UnaryServerInterceptor) (*wire.ReadingServiceClient, *recorder) {
	t.Helper()

	rec := &recorder{outcome: alerts.Outcome{Status: alerts.StatusInRange}}

	srv := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	wire.RegisterReadingServiceServer(srv, receiver.New(rec))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go srv.Serve(lis) //nolint:errcheck

	t.Cleanup(func() {
		srv.Stop()
		lis.Close()
	})

	conn, err := grpc.Dial(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	) //nolint:staticcheck
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return wire.NewReadingServiceClient(conn), rec
}

// allowAll is a no-op interceptor that passes every call through.
func allowAll(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	return handler(ctx, req)
}

func sample(id string) *wire.SubmitRequest {
	return &wire.SubmitRequest{
		SensorID:   id,
		Parameters: map[string]interface{}{"nitrogen": 12.5, "ph": "6.4"},
		Timestamp:  "2024-06-01T08:00:00Z",
	}
}

func TestSubmitReading_Submits(t *testing.T) {
	client, rec := startServer(t, allowAll)

	resp, err := client.SubmitReading(context.Background(), sample("sensor-1"))
	if err != nil {
		t.Fatalf("SubmitReading: %v", err)
	}
	if resp.Status != string(alerts.StatusInRange) {
		t.Errorf("Status: got %q, want in_range", resp.Status)
	}
	if rec.Len() != 1 {
		t.Fatalf("submitted: got %d, want 1", rec.Len())
	}
	r := rec.readings[0]
	if r.SensorID != "sensor-1" || r.Parameters["nitrogen"] != 12.5 || r.Parameters["ph"] != 6.4 {
		t.Errorf("reading: got %+v", r)
	}
}

func TestSubmitReading_MissingSensorID_InvalidArgument(t *testing.T) {
	client, rec := startServer(t, allowAll)

	_, err := client.SubmitReading(context.Background(), &wire.SubmitRequest{})
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Errorf("code: got %v, want InvalidArgument", code)
	}
	if rec.Len() != 0 {
		t.Errorf("submitted: got %d, want 0", rec.Len())
	}
}

func TestSubmitReading_DuplicateParameter_InvalidArgument(t *testing.T) {
	client, rec := startServer(t, allowAll)

	req := &wire.SubmitRequest{
		SensorID:   "sensor-1",
		Parameters: map[string]interface{}{"pH": 6.1, "ph": 7.9},
	}
	_, err := client.SubmitReading(context.Background(), req)
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Errorf("code: got %v, want InvalidArgument", code)
	}
	if rec.Len() != 0 {
		t.Errorf("submitted: got %d, want 0", rec.Len())
	}
}

func TestSubmitReading_BadTimestamp_InvalidArgument(t *testing.T) {
	client, _ := startServer(t, allowAll)

	req := sample("sensor-1")
	req.Timestamp = "not a time"
	_, err := client.SubmitReading(context.Background(), req)
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Errorf("code: got %v, want InvalidArgument", code)
	}
}

func TestSubmitReading_WithAPIKeyInterceptor(t *testing.T) {
	i := auth.APIKeyInterceptor("apikey", "x-api-key", "testkey")
	client, rec := startServer(t, i)

	ok := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "testkey")
	if _, err := client.SubmitReading(ok, sample("s")); err != nil {
		t.Fatalf("SubmitReading with correct key: %v", err)
	}

	bad := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "wrongkey")
	if _, err := client.SubmitReading(bad, sample("s")); status.Code(err) != codes.Unauthenticated {
		t.Errorf("wrong key: got %v, want Unauthenticated", err)
	}
	if _, err := client.SubmitReading(context.Background(), sample("s")); status.Code(err) != codes.Unauthenticated {
		t.Errorf("missing key: got %v, want Unauthenticated", err)
	}
	if rec.Len() != 1 {
		t.Errorf("submitted: got %d, want 1", rec.Len())
	}
}

func TestResponse(t *testing.T) {
	out := alerts.Outcome{
		Status:     alerts.StatusDispatched,
		Identity:   "abc",
		Violations: []types.Violation{{Parameter: "nitrogen"}, {Parameter: "ph"}},
	}
	r := receiver.Response(out)
	if r.Status != "dispatched" || r.Identity != "abc" || r.Violations != 2 {
		t.Errorf("Response: got %+v", r)
	}
}
