package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultTopic is the Kafka topic security events are published to.
const DefaultTopic = "storegate.security-events"

// KafkaPublisher ships events to Kafka through a bounded buffer. Emit never
// blocks the request path: when the buffer is full the oldest event is
// dropped and counted, because losing an audit record must cost less than
// stalling authentication.
type KafkaPublisher struct {
	client *kgo.Client
	logger *slog.Logger
	topic  string
	buf    chan Event
}

// KafkaOption configures a KafkaPublisher.
type KafkaOption func(*KafkaPublisher)

// WithTopic overrides the default topic.
func WithTopic(topic string) KafkaOption {
	return func(p *KafkaPublisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// WithBufferSize overrides the default buffer capacity of 1024 events.
func WithBufferSize(n int) KafkaOption {
	return func(p *KafkaPublisher) {
		if n > 0 {
			p.buf = make(chan Event, n)
		}
	}
}

// NewKafka constructs a Kafka-backed publisher.
func NewKafka(client *kgo.Client, logger *slog.Logger, opts ...KafkaOption) *KafkaPublisher {
	p := &KafkaPublisher{
		client: client,
		logger: logger,
		topic:  DefaultTopic,
		buf:    make(chan Event, 1024),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// EnsureTopic creates the topic if the cluster does not have it yet.
// Safe to call at startup; existing topics are left untouched.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, partitions, 1, nil, topic)
	if err != nil {
		return err
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return resp.Err
	}
	return nil
}

// Emit enqueues the event, dropping the oldest buffered event on overflow.
func (p *KafkaPublisher) Emit(_ context.Context, ev Event) {
	for {
		select {
		case p.buf <- ev:
			return
		default:
		}
		select {
		case dropped := <-p.buf:
			p.logger.Warn("audit buffer full, dropping oldest event",
				"dropped_event_id", dropped.ID,
				"dropped_event_type", string(dropped.Type),
			)
		default:
		}
	}
}

// Run drains the buffer until ctx is canceled, then flushes what it can
// within a short grace period.
func (p *KafkaPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return ctx.Err()
		case ev := <-p.buf:
			p.produce(ctx, ev)
		}
	}
}

func (p *KafkaPublisher) produce(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("encode audit event", "error", err, "event_id", ev.ID)
		return
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.UserID),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("publish audit event", "error", err, "event_id", ev.ID)
		}
	})
}

func (p *KafkaPublisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-p.buf:
			p.produce(ctx, ev)
		default:
			_ = p.client.Flush(ctx)
			return
		}
	}
}
