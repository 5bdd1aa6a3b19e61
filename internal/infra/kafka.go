package infra

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewKafkaWriter returns a writer for the ledger event topic, or nil when no
// brokers are configured. Messages are hashed by key so one owner's events
// stay on a single partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if len(brokers) == 0 {
		return nil
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
	}
}
