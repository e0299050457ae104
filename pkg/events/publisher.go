package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/hashicorp-forge/repomigrate/pkg/migration"
)

// DefaultTopic is the topic used when none is configured.
const DefaultTopic = "repomigrate.events"

// Compile-time checks that publishers record migration results.
var (
	_ migration.RunSink = (*Publisher)(nil)
	_ migration.RunSink = (*MemoryPublisher)(nil)
)

// Config holds configuration for the event publisher.
type Config struct {
	Brokers []string `hcl:"brokers,optional"`
	Topic   string   `hcl:"topic,optional"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Brokers, validation.Required),
	)
}

// producer is the part of *kgo.Client the publisher uses.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Publisher publishes events to Kafka/Redpanda.
type Publisher struct {
	client producer
	topic  string
	logger hclog.Logger
}

// NewPublisher creates a Kafka publisher.
func NewPublisher(cfg Config, log hclog.Logger) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid events config: %w", err)
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),
		kgo.RetryBackoffFn(func(tries int) time.Duration {
			backoff := time.Duration(tries) * 100 * time.Millisecond
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
			return backoff
		}),
		kgo.RequestRetries(5),
		kgo.ProducerLinger(10*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return newPublisher(client, cfg.Topic, log), nil
}

func newPublisher(client producer, topic string, log hclog.Logger) *Publisher {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Publisher{client: client, topic: topic, logger: log.Named("events")}
}

// Publish sends one event and waits for the broker to acknowledge it.
func (p *Publisher) Publish(ctx context.Context, e *Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   e.partitionKey(),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", e.Type, err)
	}
	p.logger.Trace("published event", "type", e.Type, "id", e.ID)
	return nil
}

// StartRun implements migration.RunSink.
func (p *Publisher) StartRun(ctx context.Context, runID, root string) error {
	e := newEvent(TypeRunStarted, runID)
	e.Root = root
	return p.Publish(ctx, e)
}

// Record implements migration.Sink.
func (p *Publisher) Record(ctx context.Context, runID string, r migration.Result) error {
	return p.Publish(ctx, ResultEvent(runID, r))
}

// FinishRun implements migration.RunSink.
func (p *Publisher) FinishRun(ctx context.Context, runID string, s migration.Summary) error {
	e := newEvent(TypeRunFinished, runID)
	e.Summary = &s
	return p.Publish(ctx, e)
}

// Close flushes and closes the client.
func (p *Publisher) Close() {
	p.client.Close()
}

// MemoryPublisher keeps events in memory. It backs dry runs and tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []*Event
}

// NewMemoryPublisher creates an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (m *MemoryPublisher) add(e *Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

// StartRun implements migration.RunSink.
func (m *MemoryPublisher) StartRun(_ context.Context, runID, root string) error {
	e := newEvent(TypeRunStarted, runID)
	e.Root = root
	m.add(e)
	return nil
}

// Record implements migration.Sink.
func (m *MemoryPublisher) Record(_ context.Context, runID string, r migration.Result) error {
	m.add(ResultEvent(runID, r))
	return nil
}

// FinishRun implements migration.RunSink.
func (m *MemoryPublisher) FinishRun(_ context.Context, runID string, s migration.Summary) error {
	e := newEvent(TypeRunFinished, runID)
	e.Summary = &s
	m.add(e)
	return nil
}

// Events returns a copy of the published events.
func (m *MemoryPublisher) Events() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Event, len(m.events))
	copy(out, m.events)
	return out
}
