package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const maxResponseBytes = 512

// Options configure a Gateway. Zero breaker settings use gobreaker defaults.
type Options struct {
	URL             string
	Token           string
	From            string
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Client          *http.Client
}

// Gateway sends messages through an HTTP SMS provider.
type Gateway struct {
	url     string
	token   string
	from    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewGateway creates a Gateway. A nil Client uses one with a 15s timeout;
// per-send deadlines come from the caller's context.
func NewGateway(o Options) *Gateway {
	client := o.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	st := gobreaker.Settings{
		Name:    "sms-gateway",
		Timeout: o.BreakerCooldown,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("sms: circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	if o.BreakerFailures > 0 {
		n := o.BreakerFailures
		st.ReadyToTrip = func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= n }
	}
	return &Gateway{
		url:     o.URL,
		token:   o.Token,
		from:    o.From,
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

type message struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}

// Send posts text to the provider for delivery to to and returns the
// provider's response body.
func (g *Gateway) Send(ctx context.Context, to, text string) (string, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.post(ctx, message{To: to, From: g.from, Text: text})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("sms gateway unavailable: %w", err)
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (g *Gateway) post(ctx context.Context, m message) (string, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	text := strings.TrimSpace(string(raw))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("gateway returned HTTP %d: %s", resp.StatusCode, text)
	}
	return text, nil
}

// LogSender logs every message instead of sending it.
type LogSender struct{}

// Send logs text for to and always succeeds.
func (LogSender) Send(_ context.Context, to, text string) (string, error) {
	slog.Info("sms: gateway not configured, message logged only", "to", to, "text", text)
	return "logged", nil
}
