package audit

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"promisetracker/internal/models"
)

// Publisher delivers outbox entries to the event stream.
type Publisher interface {
	Publish(ctx context.Context, entries []*models.OutboxEntry) error
}

// KafkaPublisher produces outbox entries to one topic, keyed by aggregate id.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func NewKafkaPublisher(client *kgo.Client, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic}
}

// Publish blocks until every record is acknowledged. Delivery is at least
// once: a failure after partial success republishes the whole batch.
func (p *KafkaPublisher) Publish(ctx context.Context, entries []*models.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, &kgo.Record{
			Topic: p.topic,
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: []kgo.RecordHeader{
				{Key: "event_type", Value: []byte(e.EventType)},
				{Key: "aggregate_type", Value: []byte(e.AggregateType)},
				{Key: "outbox_id", Value: []byte(e.ID.String())},
			},
			Timestamp: e.CreatedAt,
		})
	}
	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce %d audit records: %w", len(records), err)
	}
	return nil
}
