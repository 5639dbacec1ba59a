// Package events publishes lesson lifecycle events for downstream consumers
// such as achievements and analytics.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// TypeLessonCompleted is the event_type header of completion events.
const TypeLessonCompleted = "lesson.completed"

// LessonCompleted is emitted once a completion record has been accepted.
type LessonCompleted struct {
	ID                string    `json:"id"`
	SessionID         string    `json:"sessionId"`
	LessonID          string    `json:"lessonId"`
	LearnerID         string    `json:"learnerId,omitempty"`
	Score             int       `json:"score"`
	Passed            bool      `json:"passed"`
	DurationSeconds   int       `json:"durationSeconds"`
	SectionsCompleted int       `json:"sectionsCompleted"`
	OccurredAt        time.Time `json:"occurredAt"`
}

// Publisher emits lesson events.
type Publisher interface {
	PublishCompleted(ctx context.Context, ev LessonCompleted) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishCompleted(context.Context, LessonCompleted) error { return nil }
func (NopPublisher) Close() error { return nil }

// MemoryPublisher keeps events in memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []LessonCompleted
	Err    error
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (m *MemoryPublisher) PublishCompleted(_ context.Context, ev LessonCompleted) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryPublisher) Close() error { return nil }

// Events returns the published events.
func (m *MemoryPublisher) Events() []LessonCompleted {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LessonCompleted{}, m.events...)
}

// WatermillPublisher publishes JSON events to a watermill topic.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
	logger    *slog.Logger
}

// NewWatermillPublisher wraps any watermill publisher.
func NewWatermillPublisher(pub message.Publisher, topic string, logger *slog.Logger) *WatermillPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatermillPublisher{publisher: pub, topic: topic, logger: logger}
}

// KafkaConfig holds the broker settings for NewKafkaPublisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Logger  *slog.Logger
}

// NewKafkaPublisher creates a Kafka-backed publisher.
func NewKafkaPublisher(cfg KafkaConfig) (*WatermillPublisher, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.Brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	return NewWatermillPublisher(pub, cfg.Topic, logger), nil
}

func (p *WatermillPublisher) PublishCompleted(ctx context.Context, ev LessonCompleted) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(ev.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", TypeLessonCompleted)
	msg.Metadata.Set("lesson_id", ev.LessonID)
	msg.Metadata.Set("timestamp", ev.OccurredAt.Format(time.RFC3339))

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		p.logger.Error("publish event failed",
			"event_id", ev.ID,
			"event_type", TypeLessonCompleted,
			"error", err,
		)
		return fmt.Errorf("publish event: %w", err)
	}

	p.logger.Debug("event published",
		"event_id", ev.ID,
		"event_type", TypeLessonCompleted,
		"topic", p.topic,
	)
	return nil
}

func (p *WatermillPublisher) Close() error {
	return p.publisher.Close()
}
