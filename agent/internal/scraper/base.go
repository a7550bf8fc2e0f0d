package scraper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/soilwatch/soilwatch/agent/internal/config"
	"github.com/soilwatch/soilwatch/pkg/types"
)

const defaultScrapeTimeout = 10 * time.Second

// ScrapeResult is the output of one scrape cycle for a single gateway.
type ScrapeResult struct {
	GatewayID string
	ScrapedAt time.Time

	// Readings holds one reading per sensor_id seen in the scrape, sorted by
	// sensor id.
	Readings []types.SensorReading

	// Err is non-nil if the scrape itself failed (connectivity, auth, parse).
	Err error
}

// Scraper is implemented by every gateway scraper.
type Scraper interface {
	Scrape(ctx context.Context) (*ScrapeResult, error)
}

// New returns a Scraper for the given gateway configuration.
// It builds the HTTP client once and reuses it across scrape calls.
func New(gw config.Gateway) (Scraper, error) {
	client, err := buildHTTPClient(gw)
	if err != nil {
		return nil, fmt.Errorf("scraper %q: build http client: %w", gw.ID, err)
	}
	return &gatewayScraper{gw: gw, client: client, now: time.Now}, nil
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the gateway's auth and TLS settings.
func buildHTTPClient(gw config.Gateway) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: gw.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if gw.Auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(gw.Auth.CertFile, gw.Auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

		if gw.Auth.CAFile != "" {
			caPEM, err := os.ReadFile(gw.Auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("no valid certs found in ca file %q", gw.Auth.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
	}

	transport := &authRoundTripper{
		base: &http.Transport{TLSClientConfig: tlsCfg},
		auth: gw.Auth,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultScrapeTimeout,
	}, nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// valueOf returns the sample value of a counter, gauge or untyped metric.
// Histograms and summaries report false.
func valueOf(m *dto.Metric) (float64, bool) {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue(), true
	case m.Untyped != nil:
		return m.Untyped.GetValue(), true
	case m.Counter != nil:
		return m.Counter.GetValue(), true
	}
	return 0, false
}

// labelValue returns the value of label name on m, or "".
func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
