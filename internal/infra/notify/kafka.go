package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"planmarket/internal/domain/event"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notifications as JSON, keyed by recipient so one
// user's messages stay ordered on a partition.
type KafkaNotifier struct {
	writer  messageWriter
	timeout time.Duration
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return &KafkaNotifier{writer: w, timeout: 5 * time.Second}
}

func (k *KafkaNotifier) Notify(ctx context.Context, n event.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(n.RecipientID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(n.Type)},
		},
		Time: n.OccurredAt,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write failed: %w", err)
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
