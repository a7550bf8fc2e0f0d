package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/soilwatch/soilwatch/pkg/types"
	"github.com/soilwatch/soilwatch/server/internal/metrics"
)

const (
	// EventAlertDelivered is the type of every event written by KafkaPublisher.
	EventAlertDelivered = "alert.delivered"

	queueSize    = 256
	writeTimeout = 10 * time.Second
)

// Event is the JSON envelope written to Kafka.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	OccurredAt time.Time         `json:"occurredAt"`
	Alert      types.AlertRecord `json:"alert"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes delivered alerts to Kafka.
type KafkaPublisher struct {
	w     messageWriter
	queue chan Event
	once  sync.Once
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
// Call Run to start delivery.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return newPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 100 * time.Millisecond,
	})
}

func newPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w, queue: make(chan Event, queueSize)}
}

// Publish enqueues rec; it drops the event when the queue is full.
func (p *KafkaPublisher) Publish(_ context.Context, rec types.AlertRecord) {
	ev := Event{
		ID:         uuid.NewString(),
		Type:       EventAlertDelivered,
		OccurredAt: rec.SentAt,
		Alert:      rec,
	}
	select {
	case p.queue <- ev:
	default:
		metrics.Events.WithLabelValues("dropped").Inc()
		slog.Warn("events: queue full, dropping alert event", "identity", rec.Identity)
	}
}

// Run writes queued events until ctx is cancelled, then flushes what is
// left and closes the writer.
func (p *KafkaPublisher) Run(ctx context.Context) {
	for {
		select {
		case ev := <-p.queue:
			p.write(context.Background(), ev)
		case <-ctx.Done():
			p.drain()
			return
		}
	}
}

func (p *KafkaPublisher) drain() {
	for {
		select {
		case ev := <-p.queue:
			p.write(context.Background(), ev)
		default:
			p.once.Do(func() {
				if err := p.w.Close(); err != nil {
					slog.Warn("events: close kafka writer", "err", err)
				}
			})
			return
		}
	}
}

func (p *KafkaPublisher) write(ctx context.Context, ev Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		metrics.Events.WithLabelValues("error").Inc()
		slog.Error("events: encode event", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Alert.PlantID),
		Value: value,
		Time:  ev.OccurredAt,
	})
	if err != nil {
		metrics.Events.WithLabelValues("error").Inc()
		slog.Warn("events: kafka write failed", "identity", ev.Alert.Identity, "err", err)
		return
	}
	metrics.Events.WithLabelValues("published").Inc()
}

// Multi publishes to every non-nil publisher in order.
type Multi []interface {
	Publish(ctx context.Context, rec types.AlertRecord)
}

// Publish hands rec to each publisher.
func (m Multi) Publish(ctx context.Context, rec types.AlertRecord) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, rec)
		}
	}
}
