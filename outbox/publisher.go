package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	log "github.com/sirupsen/logrus"

	"github.com/sacavia/guide-ledger/ledger"
)

// Publisher delivers purchase events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, e ledger.OutboxEntry) error
}

// =============================================================================
// LOG PUBLISHER - Used when no broker is configured
// =============================================================================

type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, e ledger.OutboxEntry) error {
	log.WithFields(log.Fields{
		"event_id": e.ID,
		"topic":    e.Topic,
		"key":      e.Key,
	}).Info(string(e.Payload))
	return nil
}

// =============================================================================
// KAFKA PUBLISHER
// =============================================================================

// KafkaPublisher produces every event to a single Kafka topic, keyed by the
// outbox entry key (the purchase id) so events of one purchase stay ordered.
// The event type travels in the "event_type" header.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaPublisher(bootstrapServers, topic string) (*KafkaPublisher, error) {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  bootstrapServers,
		"enable.idempotence": true,
		"acks":               "all",
		"client.id":          "guide-ledger",
	}
	log.WithField("config", fmt.Sprintf("%+v", configMap)).Debug("Kafka producer config")

	producer, err := kafka.NewProducer(configMap)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	log.WithFields(log.Fields{
		"kafka_servers": bootstrapServers,
		"topic":         topic,
	}).Info("Kafka producer ready")

	return &KafkaPublisher{producer: producer, topic: topic}, nil
}

// Publish blocks until the broker acknowledges the message or ctx is done.
func (k *KafkaPublisher) Publish(ctx context.Context, e ledger.OutboxEntry) error {
	delivery := make(chan kafka.Event, 1)

	err := k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            []byte(e.Key),
		Value:          e.Payload,
		Timestamp:      e.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(e.ID)},
			{Key: "event_type", Value: []byte(e.Topic)},
		},
	}, delivery)
	if err != nil {
		return fmt.Errorf("produce %s: %w", e.ID, err)
	}

	select {
	case ev := <-delivery:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event %v", ev)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("deliver %s: %w", e.ID, m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes outstanding messages for up to timeout and closes the producer.
func (k *KafkaPublisher) Close(timeout time.Duration) {
	if left := k.producer.Flush(int(timeout.Milliseconds())); left > 0 {
		log.WithField("unflushed", left).Warn("Kafka producer closed with undelivered messages")
	}
	k.producer.Close()
}
