package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/vadiminshakov/folio/internal/domain"
)

// MessageWriter is the part of *kafka.Writer the notifier uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes every alert as a JSON event keyed by its rule key.
type KafkaNotifier struct {
	writer MessageWriter
	topic  string
}

// AlertEvent is the message body published to Kafka.
type AlertEvent struct {
	EventType string       `json:"event_type"`
	Alert     domain.Alert `json:"alert"`
	Timestamp time.Time    `json:"timestamp"`
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return NewKafkaNotifierWithWriter(writer, topic)
}

func NewKafkaNotifierWithWriter(writer MessageWriter, topic string) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, topic: topic}
}

func (n *KafkaNotifier) Notify(ctx context.Context, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(alerts))
	for _, a := range alerts {
		data, err := json.Marshal(AlertEvent{
			EventType: "PORTFOLIO_ALERT",
			Alert:     a,
			Timestamp: a.FiredAt,
		})
		if err != nil {
			return errors.Wrap(err, "failed to marshal alert event")
		}
		msgs = append(msgs, kafka.Message{Key: []byte(a.Key), Value: data})
	}

	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		return errors.Wrapf(err, "failed to write alerts to kafka topic %s", n.topic)
	}

	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
