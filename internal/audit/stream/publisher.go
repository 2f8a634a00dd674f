// Package stream mirrors appended audit records to a Kafka topic.
//
// Publication is best effort: the audit table stays the system of record, so
// records that cannot be published are logged and dropped, never retried into
// the request path.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"gestionale/internal/audit/models"
	"gestionale/internal/platform/metrics"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 250 * time.Millisecond
	drainTimeout         = 5 * time.Second
)

// Producer is the subset of *kgo.Client the publisher uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher buffers records and produces them from a background loop.
type Publisher struct {
	producer Producer
	topic    string
	buffer   *RingBuffer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	batch    int
	wake     chan struct{}
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		p.interval = d
	}
}

func WithCapacity(n int) Option {
	return func(p *Publisher) {
		p.buffer = NewRingBuffer(n)
	}
}

// NewPublisher returns a publisher producing to topic. Call Run to start it.
func NewPublisher(producer Producer, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    topic,
		buffer:   NewRingBuffer(defaultCapacity),
		logger:   slog.New(slog.DiscardHandler),
		interval: defaultFlushInterval,
		batch:    defaultBatchSize,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish queues rec without blocking.
func (p *Publisher) Publish(rec models.Record) {
	if p.buffer.Enqueue(rec) {
		p.logger.Warn("audit stream buffer full, dropped oldest record")
		if p.metrics != nil {
			p.metrics.IncrementAuditStreamDropped()
		}
	}
	if p.buffer.Len() >= p.batch {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

// Run flushes batches until ctx is cancelled, then drains what is left.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.drain(ctx)
			return nil
		case <-ticker.C:
			p.flush(ctx)
		case <-p.wake:
			p.flush(ctx)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	for p.buffer.Len() > 0 && drainCtx.Err() == nil {
		p.flush(drainCtx)
	}
}

func (p *Publisher) flush(ctx context.Context) {
	batch := p.buffer.DequeueBatch(p.batch)
	if len(batch) == 0 {
		return
	}
	records := make([]*kgo.Record, 0, len(batch))
	for _, rec := range batch {
		kr, err := p.encode(rec)
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to encode audit record", "error", err, "audit_id", rec.ID)
			continue
		}
		records = append(records, kr)
	}
	for _, res := range p.producer.ProduceSync(ctx, records...) {
		if res.Err != nil {
			p.logger.ErrorContext(ctx, "failed to publish audit record",
				"error", res.Err,
				"topic", p.topic,
				"key", string(res.Record.Key),
			)
		}
	}
}

// encode keys records by entity so one entity's history lands on one partition.
func (p *Publisher) encode(rec models.Record) (*kgo.Record, error) {
	value, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Topic: p.topic,
		Key:   []byte(rec.Entity + ":" + rec.EntityID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(rec.Action)},
		},
	}, nil
}
