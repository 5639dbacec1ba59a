package session

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/blake2b"

	"github.com/p-n-ai/pai-lesson/internal/platform/database"
)

const dbTimeout = 5 * time.Second

// Telemetry event types.
const (
	EventSessionStarted   = "session_started"
	EventStepChanged      = "step_changed"
	EventAnswerSubmitted  = "answer_submitted"
	EventSpeechEvaluated  = "speech_evaluated"
	EventSpeechFailed     = "speech_failed"
	EventMicrophoneDenied = "microphone_denied"
	EventMediaEvent       = "media_event"
	EventAutosaveFailed   = "autosave_failed"
	EventCompletionFailed = "completion_failed"
	EventLessonCompleted  = "lesson_completed"
)

// Event is one interaction telemetry record.
type Event struct {
	SessionID string
	LessonID  string
	LearnerID string
	EventType string
	Data      map[string]any
	CreatedAt time.Time
}

// EventLogger defines event logging behavior.
type EventLogger interface {
	LogEvent(event Event) error
}

type discardEvents struct{}

func (discardEvents) LogEvent(Event) error { return nil }

// EventLog keeps events in memory, grouped by type.
type EventLog struct {
	mu     sync.Mutex
	byType map[string][]Event
}

func NewEventLog() *EventLog {
	return &EventLog{byType: make(map[string][]Event)}
}

func (l *EventLog) LogEvent(event Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	l.mu.Lock()
	l.byType[event.EventType] = append(l.byType[event.EventType], event)
	l.mu.Unlock()
	return nil
}

// OfType returns the events of one type in the order they were logged.
func (l *EventLog) OfType(eventType string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.byType[eventType]...)
}

// Count returns how many events of the type were logged.
func (l *EventLog) Count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byType[eventType])
}

// TelemetryMigration creates the lesson_events table.
var TelemetryMigration = database.Migration{
	Name: "0002_lesson_events",
	SQL: `
CREATE TABLE IF NOT EXISTS lesson_events (
	id         BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	lesson_id  TEXT NOT NULL,
	learner_id TEXT NOT NULL DEFAULT '',
	event_type TEXT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS lesson_events_session_idx ON lesson_events (session_id, created_at);`,
}

// PostgresEventLogger inserts events into the lesson_events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

// EnsureSchema applies TelemetryMigration.
func (l *PostgresEventLogger) EnsureSchema(ctx context.Context) error {
	return database.Migrate(ctx, l.pool, TelemetryMigration)
}

func (l *PostgresEventLogger) LogEvent(event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO lesson_events (session_id, lesson_id, learner_id, event_type, data, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		event.SessionID,
		event.LessonID,
		event.LearnerID,
		event.EventType,
		string(data),
		createdAt,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged",
		"type", event.EventType,
		"session_id", event.SessionID,
		"lesson_id", event.LessonID,
	)
	return nil
}

// AudioFingerprint identifies a recording in telemetry without storing it.
func AudioFingerprint(audio []byte) string {
	sum := blake2b.Sum256(audio)
	return hex.EncodeToString(sum[:16])
}
