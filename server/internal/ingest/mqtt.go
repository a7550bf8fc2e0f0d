package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/soilwatch/soilwatch/pkg/types"
	"github.com/soilwatch/soilwatch/pkg/wire"
	"github.com/soilwatch/soilwatch/server/internal/alerts"
	"github.com/soilwatch/soilwatch/server/internal/metrics"
)

const connectTimeout = 10 * time.Second

// Submitter runs the alert pipeline on one reading.
type Submitter interface {
	Submit(ctx context.Context, r types.SensorReading) alerts.Outcome
}

// Options configure a Subscriber.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// Subscriber feeds MQTT readings into the pipeline.
type Subscriber struct {
	opts Options
	sub  Submitter
}

// NewSubscriber creates a Subscriber; call Run to connect.
func NewSubscriber(o Options, s Submitter) *Subscriber {
	return &Subscriber{opts: o, sub: s}
}

// Run connects, subscribes and processes messages until ctx is cancelled.
// The subscription is renewed on every reconnect.
func (s *Subscriber) Run(ctx context.Context) error {
	co := mqtt.NewClientOptions().
		AddBroker(s.opts.Broker).
		SetClientID(s.opts.ClientID).
		SetUsername(s.opts.Username).
		SetPassword(s.opts.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false)

	co.SetOnConnectHandler(func(c mqtt.Client) {
		tok := c.Subscribe(s.opts.Topic, s.opts.QoS, func(_ mqtt.Client, m mqtt.Message) {
			s.handle(ctx, m.Topic(), m.Payload())
		})
		if tok.WaitTimeout(connectTimeout) && tok.Error() != nil {
			slog.Error("ingest: subscribe failed", "topic", s.opts.Topic, "err", tok.Error())
			return
		}
		slog.Info("ingest: subscribed", "broker", s.opts.Broker, "topic", s.opts.Topic)
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("ingest: connection lost, reconnecting", "err", err)
	})

	client := mqtt.NewClient(co)
	tok := client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		// SetConnectRetry keeps trying in the background.
		slog.Warn("ingest: broker not reachable yet, retrying", "broker", s.opts.Broker)
	} else if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", s.opts.Broker, err)
	}

	<-ctx.Done()
	client.Disconnect(250)
	return nil
}

func (s *Subscriber) handle(ctx context.Context, topic string, payload []byte) {
	var req wire.SubmitRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		slog.Warn("ingest: invalid payload", "topic", topic, "err", err)
		return
	}
	if strings.TrimSpace(req.SensorID) == "" {
		req.SensorID = sensorFromTopic(s.opts.Topic, topic)
	}
	r, err := req.Reading()
	if err != nil {
		slog.Warn("ingest: invalid reading", "topic", topic, "err", err)
		return
	}
	metrics.Readings.WithLabelValues("mqtt").Inc()

	out := s.sub.Submit(ctx, r)
	slog.Debug("ingest: reading processed", "sensor", r.SensorID, "status", out.Status)
}

// sensorFromTopic returns the segment of topic matched by the first "+"
// wildcard of filter, or "" when there is none.
func sensorFromTopic(filter, topic string) string {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		if f == "#" || i >= len(ts) {
			return ""
		}
		if f == "+" {
			return ts[i]
		}
	}
	return ""
}
