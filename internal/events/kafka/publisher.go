// Package kafka publishes committed domain events to a Kafka topic so
// downstream consumers (reporting, CRM sync) can react without touching the
// ledger's database.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"tally/internal/events"
)

// Publisher is an event-bus subscriber that produces one JSON record per
// domain event, keyed by user ID so per-user ordering is preserved within a
// partition.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// NewPublisher connects to the given brokers. The bus already decouples
// publishing from the ledger write path, so records are produced
// synchronously to keep per-user ordering.
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Publisher{client: client, topic: topic}, nil
}

// Name implements events.Subscriber.
func (p *Publisher) Name() string { return "kafka" }

// envelope is the wire format for domain events. Payload layout follows the
// event structs; Kind lets consumers route without sniffing fields.
type envelope struct {
	Kind       string          `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Handle implements events.Subscriber.
func (p *Publisher) Handle(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	value, err := json.Marshal(envelope{
		Kind:       string(event.Kind()),
		OccurredAt: event.Occurred(),
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   partitionKey(event),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", event.Kind(), err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (p *Publisher) Close() {
	p.client.Close()
}

func partitionKey(event events.Event) []byte {
	switch e := event.(type) {
	case events.PointsEarned:
		return []byte(e.UserID.String())
	case events.LevelUp:
		return []byte(e.UserID.String())
	default:
		return nil
	}
}
