package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// TransitionEvent is published after every successful ledger mutation.
type TransitionEvent struct {
	EntryID  string    `json:"entry_id"`
	TenantID string    `json:"tenant_id,omitempty"`
	Lane     Lane      `json:"lane"`
	From     Status    `json:"from,omitempty"`
	To       Status    `json:"to"`
	Title    string    `json:"title"`
	At       time.Time `json:"at"`
}

// Publisher receives ledger events. Publishing is best-effort: the ledger logs
// failures and keeps the stored state.
type Publisher interface {
	Publish(ctx context.Context, event TransitionEvent) error
	Close() error
}

// KafkaConfig configures KafkaPublisher.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	MaxAttempts  int
	WriteTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer used by the publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by entry id so every entry's events land
// on one partition in order.
type KafkaPublisher struct {
	writer      messageWriter
	maxAttempts int
	backoff     time.Duration
}

// NewKafkaPublisher builds a publisher backed by a kafka-go writer.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaPublisher(w, cfg.MaxAttempts), nil
}

func newKafkaPublisher(w messageWriter, maxAttempts int) *KafkaPublisher {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &KafkaPublisher{writer: w, maxAttempts: maxAttempts, backoff: 100 * time.Millisecond}
}

// Publish writes one event, retrying transient failures with backoff.
func (p *KafkaPublisher) Publish(ctx context.Context, event TransitionEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.EntryID),
		Value: value,
		Time:  event.At,
	}

	var lastErr error
	backoff := p.backoff
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if lastErr = p.writer.WriteMessages(ctx, msg); lastErr == nil {
			return nil
		}
		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", p.maxAttempts, lastErr)
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
