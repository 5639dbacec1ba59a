package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-lesson/internal/platform/database"
)

const dbTimeout = 5 * time.Second

// Migration creates the progress and completion tables.
var Migration = database.Migration{
	Name: "0001_lesson_progress",
	SQL: `
CREATE TABLE IF NOT EXISTS lesson_progress (
	session_id         TEXT PRIMARY KEY,
	lesson_id          TEXT NOT NULL,
	learner_id         TEXT NOT NULL DEFAULT '',
	current_step_index INT NOT NULL,
	total_steps        INT NOT NULL,
	elapsed_seconds    INT NOT NULL,
	score              INT NOT NULL,
	answers            JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS lesson_progress_learner_idx ON lesson_progress (learner_id, lesson_id);

CREATE TABLE IF NOT EXISTS lesson_completions (
	session_id         TEXT PRIMARY KEY,
	lesson_id          TEXT NOT NULL,
	learner_id         TEXT NOT NULL DEFAULT '',
	score              INT NOT NULL,
	duration_seconds   INT NOT NULL,
	sections_completed INT NOT NULL,
	completed_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
}

// PostgresSink stores progress snapshots and completions in PostgreSQL.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// EnsureSchema applies Migration.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	return database.Migrate(ctx, s.pool, Migration)
}

func (s *PostgresSink) SaveProgress(ctx context.Context, rec ProgressRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("progress sink pool is nil")
	}
	if rec.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	answers := rec.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO lesson_progress
			(session_id, lesson_id, learner_id, current_step_index, total_steps, elapsed_seconds, score, answers, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, now())
		 ON CONFLICT (session_id) DO UPDATE SET
			current_step_index = EXCLUDED.current_step_index,
			total_steps        = EXCLUDED.total_steps,
			elapsed_seconds    = EXCLUDED.elapsed_seconds,
			score              = EXCLUDED.score,
			answers            = EXCLUDED.answers,
			updated_at         = now()`,
		rec.SessionID,
		rec.LessonID,
		rec.LearnerID,
		rec.CurrentStepIndex,
		rec.TotalSteps,
		rec.ElapsedSeconds,
		rec.Score,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

func (s *PostgresSink) SubmitCompletion(ctx context.Context, rec CompletionRecord) (CompletionResult, error) {
	if s == nil || s.pool == nil {
		return CompletionResult{}, fmt.Errorf("progress sink pool is nil")
	}
	if rec.SessionID == "" {
		return CompletionResult{}, fmt.Errorf("session_id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	// A retried submission for the same session keeps the first record.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO lesson_completions
			(session_id, lesson_id, learner_id, score, duration_seconds, sections_completed)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id) DO NOTHING`,
		rec.SessionID,
		rec.LessonID,
		rec.LearnerID,
		rec.Score,
		rec.DurationSeconds,
		rec.SectionsCompleted,
	)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("insert completion: %w", err)
	}
	return CompletionResult{Success: true}, nil
}

// LatestProgress reads the stored snapshot for a session.
func (s *PostgresSink) LatestProgress(ctx context.Context, sessionID string) (ProgressRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var (
		rec  ProgressRecord
		data []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT session_id, lesson_id, learner_id, current_step_index, total_steps, elapsed_seconds, score, answers
		 FROM lesson_progress
		 WHERE session_id = $1`,
		sessionID,
	).Scan(&rec.SessionID, &rec.LessonID, &rec.LearnerID, &rec.CurrentStepIndex,
		&rec.TotalSteps, &rec.ElapsedSeconds, &rec.Score, &data)
	if err != nil {
		return ProgressRecord{}, fmt.Errorf("read progress: %w", err)
	}
	if err := json.Unmarshal(data, &rec.Answers); err != nil {
		return ProgressRecord{}, fmt.Errorf("unmarshal answers: %w", err)
	}
	return rec, nil
}
