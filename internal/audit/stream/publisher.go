// Package stream fans audit entries out to Kafka for downstream consumers
// (compliance warehousing, tenant webhooks). The database row is the record
// of truth; the stream is lossy by design and never blocks a request.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"storyledger/internal/audit"
	"storyledger/internal/platform/metrics"
)

const bufferSize = 256

// Publisher buffers entries and produces them to a single topic. Publish is
// non-blocking: when the buffer is full the entry is dropped and counted.
type Publisher struct {
	client  *kgo.Client
	topic   string
	ch      chan audit.Entry
	log     *slog.Logger
	metrics *metrics.Metrics
}

func New(brokers []string, topic string, log *slog.Logger, m *metrics.Metrics) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Publisher{
		client:  client,
		topic:   topic,
		ch:      make(chan audit.Entry, bufferSize),
		log:     log,
		metrics: m,
	}, nil
}

// EnsureTopic creates the audit topic if it does not exist yet.
func (p *Publisher) EnsureTopic(ctx context.Context) error {
	adm := kadm.NewClient(p.client)
	_, err := adm.CreateTopic(ctx, -1, -1, nil, p.topic)
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	return nil
}

// Publish enqueues an entry for delivery. Entries are keyed by entity so a
// consumer sees one entity's history in order.
func (p *Publisher) Publish(e audit.Entry) {
	select {
	case p.ch <- e:
	default:
		p.metrics.AuditStreamDropped.Inc()
	}
}

// Run drains the buffer until ctx is cancelled. Produce failures are logged
// and counted, not retried.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.client.Close()
			return ctx.Err()
		case e := <-p.ch:
			p.produce(ctx, e)
		}
	}
}

func (p *Publisher) produce(ctx context.Context, e audit.Entry) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.metrics.AuditStreamDropped.Inc()
		p.log.ErrorContext(ctx, "audit stream marshal failed", "entry_id", e.ID, "error", err)
		return
	}
	record := &kgo.Record{
		Key:   []byte(e.EntityType + ":" + e.EntityID),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		p.metrics.AuditStreamDropped.Inc()
		p.log.ErrorContext(ctx, "audit stream produce failed", "entry_id", e.ID, "error", err)
	}
}

var _ audit.StreamPublisher = (*Publisher)(nil)
