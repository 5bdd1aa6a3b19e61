package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notifications as JSON records keyed by destination,
// so all events for one wallet owner land on the same partition.
type KafkaNotifier struct {
	writer MessageWriter
}

// NewKafkaNotifier wraps a writer.
func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

func (n *KafkaNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.writer == nil {
		return nil
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal %s notification: %w", message.Kind, err)
	}
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(message.Destination),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(message.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s notification: %w", message.Kind, err)
	}
	return nil
}

// Close closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	if n == nil || n.writer == nil {
		return nil
	}
	return n.writer.Close()
}
