// Package kafka builds the franz-go client the outbox worker publishes with.
package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"promisetracker/internal/platform/config"
)

// NewClient connects a producer to the configured brokers. Records default to
// the configured topic and wait for all in-sync replicas.
func NewClient(ctx context.Context, cfg config.Kafka) (*kgo.Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("kafka brokers are not configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping kafka: %w", err)
	}
	return client, nil
}
