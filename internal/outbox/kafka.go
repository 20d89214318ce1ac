package outbox

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes records to a topic keyed by aggregate id, so events
// of one order stay ordered within a partition.
type KafkaPublisher struct {
	w messageWriter
}

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(csv string) []string {
	var out []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}}
}

// Publish writes the batch synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, batch []Record) error {
	msgs := make([]kafka.Message, len(batch))
	for i, r := range batch {
		msgs[i] = kafka.Message{
			Key:   []byte(r.AggregateID),
			Value: r.Payload,
			Time:  r.CreatedAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(r.EventType)},
			},
		}
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return errors.Wrap(err, "write messages")
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// LogPublisher logs records instead of publishing them. Used when no broker
// is configured.
type LogPublisher struct{}

// Publish logs each record at debug level.
func (LogPublisher) Publish(ctx context.Context, batch []Record) error {
	lg := zctx.From(ctx)
	for _, r := range batch {
		lg.Debug("Order event",
			zap.Int64("id", r.ID),
			zap.String("aggregate_id", r.AggregateID),
			zap.String("event_type", r.EventType),
		)
	}
	return nil
}
