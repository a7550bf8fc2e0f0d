package shipper

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/soilwatch/soilwatch/agent/internal/config"
	"github.com/soilwatch/soilwatch/pkg/types"
	"github.com/soilwatch/soilwatch/pkg/wire"
)

// mockServer implements wire.ReadingServiceServer for testing.
type mockServer struct {
	mu       sync.Mutex
	received []*wire.SubmitRequest
	keys     []string
	reject   codes.Code // non-OK: reject every call with this code
}

func (m *mockServer) SubmitReading(ctx context.Context, req *wire.SubmitRequest) (*wire.SubmitResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		m.keys = append(m.keys, md.Get("x-api-key")...)
	}
	if m.reject != codes.OK {
		return nil, status.Error(m.reject, "mock rejection")
	}
	m.received = append(m.received, req)
	return &wire.SubmitResponse{Status: "in_range"}, nil
}

func (m *mockServer) requests() []*wire.SubmitRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*wire.SubmitRequest, len(m.received))
	copy(out, m.received)
	return out
}

// startTestServer starts an in-process gRPC server and returns a dial
// function connected to it.
func startTestServer(t *testing.T, srv *mockServer) dialFunc {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	gs := grpc.NewServer()
	wire.RegisterReadingServiceServer(gs, srv)
	go gs.Serve(lis) //nolint:errcheck
	t.Cleanup(gs.Stop)

	addr := lis.Addr().String()
	return func(ctx context.Context, _ string, _ config.AgentConfig) (*grpc.ClientConn, error) {
		return grpc.DialContext(ctx, addr, //nolint:staticcheck
			grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
}

func sample(id string, n float64) types.SensorReading {
	return types.SensorReading{
		SensorID:   id,
		Parameters: map[string]float64{types.Nitrogen: n},
		Timestamp:  time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}
}

func agentCfg() config.AgentConfig {
	return config.AgentConfig{
		ServerEndpoint: "unused-overridden-by-dialFn",
		BufferSize:     10,
	}
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !cond() {
		time.Sleep(20 * time.Millisecond)
	}
}

func TestShipper_DeliversReading(t *testing.T) {
	srv := &mockServer{}
	s := New(agentCfg(), nil)
	s.dialFn = startTestServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Ship(sample("s-1", 12))
	waitFor(func() bool { return len(srv.requests()) > 0 })

	reqs := srv.requests()
	if len(reqs) != 1 {
		t.Fatalf("server received %d readings, want 1", len(reqs))
	}
	if reqs[0].SensorID != "s-1" {
		t.Errorf("SensorID = %q, want s-1", reqs[0].SensorID)
	}
	if reqs[0].Timestamp != "2024-06-01T08:00:00Z" {
		t.Errorf("Timestamp = %q", reqs[0].Timestamp)
	}
	if v, _ := reqs[0].Parameters[types.Nitrogen].(float64); v != 12 {
		t.Errorf("nitrogen = %v, want 12", reqs[0].Parameters[types.Nitrogen])
	}
}

func TestShipper_MultipleReadings(t *testing.T) {
	srv := &mockServer{}
	s := New(agentCfg(), nil)
	s.dialFn = startTestServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	for i := 0; i < 5; i++ {
		s.Ship(sample("s-1", float64(i)))
	}
	waitFor(func() bool { return len(srv.requests()) >= 5 })

	if got := len(srv.requests()); got != 5 {
		t.Errorf("server received %d readings, want 5", got)
	}
}

func TestShipper_APIKeyMetadata(t *testing.T) {
	t.Setenv("SOILWATCH_KEY", "k-123")
	srv := &mockServer{}
	cfg := agentCfg()
	cfg.ServerAuth = config.AuthConfig{Mode: "apikey", KeyEnv: "SOILWATCH_KEY"}
	s := New(cfg, nil)
	s.dialFn = startTestServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Ship(sample("s-1", 1))
	waitFor(func() bool { return len(srv.requests()) > 0 })

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.keys) == 0 || srv.keys[0] != "k-123" {
		t.Errorf("api key metadata: got %v, want [k-123]", srv.keys)
	}
}

func TestShipper_PermanentErrorReportsLost(t *testing.T) {
	srv := &mockServer{reject: codes.InvalidArgument}
	var mu sync.Mutex
	var lost []string
	s := New(agentCfg(), func(id string) {
		mu.Lock()
		lost = append(lost, id)
		mu.Unlock()
	})
	s.dialFn = startTestServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Ship(sample("bad", 1))
	waitFor(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lost) > 0
	})

	mu.Lock()
	defer mu.Unlock()
	if len(lost) != 1 || lost[0] != "bad" {
		t.Errorf("lost: got %v, want [bad]", lost)
	}
	if s.Pending() != 0 {
		t.Errorf("pending: got %d, want 0 (discarded, not requeued)", s.Pending())
	}
}

func TestShipper_BufferEvictsOldest(t *testing.T) {
	// BufferSize=3; Ship 5 items while the shipper is not running.
	// Only the 3 most recent should survive.
	var lost []string
	s := New(config.AgentConfig{BufferSize: 3}, func(id string) { lost = append(lost, id) })

	for i := 0; i < 5; i++ {
		s.Ship(sample("s", float64(i)))
	}

	var values []float64
	for len(s.buf) > 0 {
		req := <-s.buf
		v, _ := req.Parameters[types.Nitrogen].(float64)
		values = append(values, v)
	}

	if len(values) != 3 {
		t.Fatalf("buffer has %d items, want 3", len(values))
	}
	for i, want := range []float64{2, 3, 4} {
		if values[i] != want {
			t.Errorf("values[%d] = %.0f, want %.0f", i, values[i], want)
		}
	}
	if len(lost) != 2 {
		t.Errorf("lost: got %d evictions reported, want 2", len(lost))
	}
}

func TestShipper_BackoffResets(t *testing.T) {
	b := newBackoff()
	first := b.next()
	if first > 2*time.Second {
		t.Errorf("first backoff too large: %v", first)
	}
	for i := 0; i < 10; i++ {
		b.next()
	}
	b.reset()
	after := b.next()
	if after > 2*time.Second {
		t.Errorf("backoff after reset too large: %v", after)
	}
}

func TestBackoff_NeverExceedsMax(t *testing.T) {
	b := newBackoff()
	for i := 0; i < 50; i++ {
		// With jitter, max is backoffMax * 1.25
		if d := b.next(); d > backoffMax*2 {
			t.Errorf("backoff[%d] = %v, exceeds 2×max", i, d)
		}
	}
}

func TestShipper_GracefulShutdown(t *testing.T) {
	srv := &mockServer{}
	s := New(agentCfg(), nil)
	s.dialFn = startTestServer(t, srv)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// Give it time to connect, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}
