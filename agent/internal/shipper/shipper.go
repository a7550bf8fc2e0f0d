package shipper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/soilwatch/soilwatch/agent/internal/config"
	"github.com/soilwatch/soilwatch/pkg/types"
	"github.com/soilwatch/soilwatch/pkg/wire"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second
)

// Shipper buffers sensor readings and submits them to soilwatch-server via gRPC.
// Ship() is non-blocking; when the buffer is full the oldest reading is evicted.
// Run() must be called in a goroutine to drain the buffer and handle reconnection.
type Shipper struct {
	cfg    config.AgentConfig
	buf    chan *wire.SubmitRequest
	dialFn dialFunc // injectable for tests

	// onLost is told about every reading that was dropped without reaching
	// the server.
	onLost func(sensorID string)
}

// dialFunc is the function signature used to open a gRPC connection.
type dialFunc func(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error)

// New creates a Shipper using the given agent config. onLost may be nil.
func New(cfg config.AgentConfig, onLost func(sensorID string)) *Shipper {
	if onLost == nil {
		onLost = func(string) {}
	}
	return &Shipper{
		cfg:    cfg,
		buf:    make(chan *wire.SubmitRequest, cfg.BufferSize),
		dialFn: defaultDial,
		onLost: onLost,
	}
}

// Ship converts r to a submit request and enqueues it.
// If the buffer is full the oldest entry is evicted to make room.
func (s *Shipper) Ship(r types.SensorReading) {
	req := wire.NewSubmitRequest(r)
	select {
	case s.buf <- req:
	default:
		select {
		case old := <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest reading",
				"sensor", old.SensorID, "buffer_cap", cap(s.buf))
			s.onLost(old.SensorID)
		default:
		}
		s.buf <- req
	}
}

// Pending returns the number of buffered readings.
func (s *Shipper) Pending() int { return len(s.buf) }

// Run drains the buffer, submitting readings to the server.
// It reconnects with exponential backoff when the connection is lost.
// Run blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(ctx, s.cfg.ServerEndpoint, s.cfg)
		if err != nil {
			wait := bo.next()
			slog.Error("shipper: dial failed, will retry",
				"endpoint", s.cfg.ServerEndpoint,
				"err", err,
				"retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		slog.Info("shipper: connected", "endpoint", s.cfg.ServerEndpoint)
		bo.reset()

		err = s.drain(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("shipper: connection lost, will reconnect",
			"endpoint", s.cfg.ServerEndpoint,
			"err", err,
			"retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// drain reads from the buffer and submits readings until the connection
// fails or ctx is cancelled.
func (s *Shipper) drain(ctx context.Context, conn *grpc.ClientConn) error {
	client := wire.NewReadingServiceClient(conn)

	for {
		select {
		case <-ctx.Done():
			return nil

		case req := <-s.buf:
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			if s.cfg.ServerAuth.Mode == "apikey" {
				sendCtx = metadata.AppendToOutgoingContext(
					sendCtx,
					s.cfg.ServerAuth.EffectiveHeader(), s.cfg.ServerAuth.Key(),
				)
			}

			resp, err := client.SubmitReading(sendCtx, req)
			cancel()

			if err != nil {
				if isPermanentError(err) {
					slog.Error("shipper: permanent send error, discarding reading",
						"sensor", req.SensorID, "err", err)
					s.onLost(req.SensorID)
					continue
				}
				// Requeue for the next connection if there's room.
				select {
				case s.buf <- req:
				default:
					s.onLost(req.SensorID)
				}
				return fmt.Errorf("send: %w", err)
			}

			if resp.Status == "error" {
				slog.Warn("shipper: server could not evaluate reading",
					"sensor", req.SensorID, "reason", resp.Reason)
			} else {
				slog.Debug("shipper: reading delivered",
					"sensor", req.SensorID, "status", resp.Status, "violations", resp.Violations)
			}
		}
	}
}

// isPermanentError returns true for gRPC errors that indicate the reading
// itself (or the agent's credentials) is invalid and should not be retried.
func isPermanentError(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

// defaultDial opens a gRPC connection to endpoint with auth configured from cfg.
func defaultDial(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	return grpc.DialContext(ctx, endpoint, opts...) //nolint:staticcheck // deprecated in 1.63 but DialContext is used for compat
}

// dialOptions builds grpc.DialOption slice based on the server auth config.
func dialOptions(cfg config.AgentConfig) ([]grpc.DialOption, error) {
	if cfg.ServerAuth.Mode == "mtls" {
		creds, err := buildMTLSCreds(cfg.ServerAuth)
		if err != nil {
			return nil, fmt.Errorf("shipper: build mtls creds: %w", err)
		}
		return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil
	}
	// apikey is injected per call in drain(); none is plaintext for local dev.
	return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
}

// buildMTLSCreds loads client certificate and optional CA from the auth config.
func buildMTLSCreds(auth config.AuthConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
	}

	if auth.CAFile != "" {
		caPEM, err := os.ReadFile(auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return credentials.NewTLS(tlsCfg), nil
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
