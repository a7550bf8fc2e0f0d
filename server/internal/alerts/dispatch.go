package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soilwatch/soilwatch/pkg/types"
	"github.com/soilwatch/soilwatch/server/internal/metrics"
)

// Sender delivers one text message to one address and returns the
// provider's response.
type Sender interface {
	Send(ctx context.Context, to, text string) (string, error)
}

// Dispatcher fans a message out to recipients concurrently. Each send has
// its own timeout; one failing or stalled send never affects another.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	limit   int
}

// NewDispatcher creates a Dispatcher sending at most maxConcurrent messages at once.
func NewDispatcher(s Sender, timeout time.Duration, maxConcurrent int) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Dispatcher{sender: s, timeout: timeout, limit: maxConcurrent}
}

// Eligible returns the recipients that have a contact address.
func Eligible(recipients []types.Recipient) []types.Recipient {
	out := make([]types.Recipient, 0, len(recipients))
	for _, r := range recipients {
		if strings.TrimSpace(r.Mobile) != "" {
			out = append(out, r)
		}
	}
	return out
}

// Dispatch sends message to every eligible recipient and reports each
// outcome in recipient order. Recipients without an address are skipped
// and not counted.
func (d *Dispatcher) Dispatch(ctx context.Context, message string, recipients []types.Recipient) types.DeliveryReport {
	eligible := Eligible(recipients)
	outcomes := make([]types.RecipientOutcome, len(eligible))

	var g errgroup.Group
	g.SetLimit(d.limit)
	for i, r := range eligible {
		i, r := i, r
		g.Go(func() error {
			outcomes[i] = d.send(ctx, r, message)
			return nil
		})
	}
	_ = g.Wait() // send never returns an error; failures live in outcomes

	report := types.DeliveryReport{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Success {
			report.Sent++
			metrics.Deliveries.WithLabelValues("success").Inc()
		} else {
			report.Failed++
			metrics.Deliveries.WithLabelValues("failure").Inc()
		}
	}
	return report
}

type sendResult struct {
	response string
	err      error
}

// send delivers to one recipient, giving up once the timeout elapses even
// if the sender ignores its context.
func (d *Dispatcher) send(ctx context.Context, r types.Recipient, message string) types.RecipientOutcome {
	out := types.RecipientOutcome{Name: r.Name, Mobile: r.Mobile}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan sendResult, 1)
	go func() {
		resp, err := d.sender.Send(sendCtx, r.Mobile, message)
		done <- sendResult{response: resp, err: err}
	}()

	var res sendResult
	select {
	case res = <-done:
	case <-sendCtx.Done():
		res.err = fmt.Errorf("send timed out: %w", sendCtx.Err())
	}

	if res.err != nil {
		out.Error = res.err.Error()
		slog.Warn("alerts: send failed", "recipient", r.Name, "err", res.err)
		return out
	}
	out.Success = true
	out.Response = res.response
	slog.Debug("alerts: sent", "recipient", r.Name)
	return out
}
