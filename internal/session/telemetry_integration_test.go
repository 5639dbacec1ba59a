//go:build integration

package session_test

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/pai-lesson/internal/platform/database"
	"github.com/p-n-ai/pai-lesson/internal/session"
)

func TestIntegration_PostgresEventLogger(t *testing.T) {
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("lessons"),
		postgres.WithUsername("learn"),
		postgres.WithPassword("learn"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("ConnectionString() error = %v", err)
	}
	db, err := database.New(ctx, dsn, 4, 1)
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	defer db.Close()

	logger := session.NewPostgresEventLogger(db.Pool)
	if err := logger.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	if err := logger.LogEvent(session.Event{
		SessionID: "sess-1",
		LessonID:  "es-1",
		EventType: session.EventSpeechEvaluated,
		Data:      map[string]any{"score": 85, "audio_hash": session.AudioFingerprint([]byte("RIFF"))},
	}); err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}
	if err := logger.LogEvent(session.Event{SessionID: "sess-1"}); err == nil {
		t.Error("LogEvent() without type should fail")
	}

	var n int
	var score float64
	if err := db.Pool.QueryRow(ctx,
		`SELECT count(*), max((data->>'score')::float) FROM lesson_events WHERE session_id = $1`, "sess-1",
	).Scan(&n, &score); err != nil {
		t.Fatalf("query events: %v", err)
	}
	if n != 1 || score != 85 {
		t.Errorf("events = %d, score = %v", n, score)
	}
}
