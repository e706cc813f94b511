// Package events fans case status changes out to Kafka. The engine itself
// never publishes; the HTTP layer emits an event after a transition commits.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// StatusChanged is the payload written to the status-change topic.
type StatusChanged struct {
	EventID       string    `json:"eventId"`
	CaseID        int64     `json:"caseId"`
	SupplyID      int64     `json:"supplyId"`
	Before        string    `json:"before"`
	After         string    `json:"after"`
	ClosedCaseIDs []int64   `json:"closedCaseIds,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Publisher emits status-change events to downstream consumers
// (notifications, schedulers).
type Publisher interface {
	PublishStatusChanged(ctx context.Context, ev StatusChanged) error
	Close() error
}

// KafkaPublisherConfig configures the Kafka-backed publisher.
type KafkaPublisherConfig struct {
	Brokers []string
	Topic   string

	// MaxAttempts bounds produce retries on transient error. Defaults to 3.
	MaxAttempts int

	// WriteTimeout is the per-attempt write deadline. Defaults to 10s.
	WriteTimeout time.Duration
}

// KafkaPublisher writes status-change events keyed by case id, so events
// for one case stay ordered within a partition.
type KafkaPublisher struct {
	writer      *kafka.Writer
	maxAttempts int
}

func NewKafkaPublisher(cfg KafkaPublisherConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	})

	return &KafkaPublisher{writer: w, maxAttempts: cfg.MaxAttempts}, nil
}

func (p *KafkaPublisher) PublishStatusChanged(ctx context.Context, ev StatusChanged) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	key := []byte(strconv.FormatInt(ev.CaseID, 10))

	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		ctxAttempt, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := p.writer.WriteMessages(ctxAttempt, kafka.Message{
			Key:   key,
			Value: value,
			Time:  ev.OccurredAt,
		})
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(backoff)
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", p.maxAttempts, lastErr)
}

func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
