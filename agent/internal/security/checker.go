package security

import (
	"context"
	"crypto/tls"
	"log/slog"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/soilwatch/soilwatch/agent/internal/config"
)

// Certificate states.
const (
	StatusValid       = "valid"
	StatusExpiring    = "expiring"
	StatusExpired     = "expired"
	StatusUnreachable = "unreachable"
)

// expiringWithin is how close to NotAfter a certificate counts as expiring.
const expiringWithin = 30 * 24 * time.Hour

// CertStatus describes the leaf certificate served by a gateway.
type CertStatus struct {
	GatewayID string
	Endpoint  string
	Status    string
	Issuer    string
	NotAfter  time.Time
	DaysLeft  int
}

// Check dials the TLS endpoint of gw and returns a CertStatus describing
// the leaf certificate.
//
// Returns nil for non-HTTPS endpoints. Uses a 10-second dial timeout so a
// slow or unreachable gateway does not block the caller.
func Check(ctx context.Context, gw config.Gateway, now time.Time) *CertStatus {
	u, err := url.Parse(gw.Endpoint)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{GatewayID: gw.ID, Endpoint: gw.Endpoint}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: gw.TLS.InsecureSkipVerify, //nolint:gosec
		},
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = StatusUnreachable
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = StatusUnreachable
		return cs
	}

	leaf := peerCerts[0]
	left := leaf.NotAfter.Sub(now)

	cs.NotAfter = leaf.NotAfter.UTC()
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(left.Hours() / 24))

	switch {
	case left <= 0:
		cs.Status = StatusExpired
	case left <= expiringWithin:
		cs.Status = StatusExpiring
	default:
		cs.Status = StatusValid
	}
	return cs
}

// Run checks every HTTPS gateway immediately and then every interval,
// logging a warning for certificates that are expiring, expired or
// unreachable. It blocks until ctx is cancelled.
func Run(ctx context.Context, gateways []config.Gateway, interval time.Duration) {
	checkAll := func() {
		for _, gw := range gateways {
			cs := Check(ctx, gw, time.Now())
			if cs == nil {
				continue
			}
			if cs.Status == StatusValid {
				slog.Debug("security: certificate valid", "gateway", cs.GatewayID, "days_left", cs.DaysLeft)
				continue
			}
			slog.Warn("security: gateway certificate needs attention",
				"gateway", cs.GatewayID,
				"status", cs.Status,
				"days_left", cs.DaysLeft,
				"issuer", cs.Issuer,
			)
		}
	}

	checkAll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkAll()
		}
	}
}
