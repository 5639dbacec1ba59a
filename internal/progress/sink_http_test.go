package progress_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/p-n-ai/pai-lesson/internal/platform/resilience"
	"github.com/p-n-ai/pai-lesson/internal/progress"
)

func newSink(url string) *progress.HTTPSink {
	return progress.NewHTTPSink(url, progress.WithResilience(resilience.Options{
		MaxAttempts:      2,
		InitialDelay:     time.Millisecond,
		MaxDelay:         time.Millisecond,
		FailureThreshold: 100,
	}))
}

func TestHTTPSink_SaveProgress(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/lessons/es-1/progress" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	err := newSink(server.URL).SaveProgress(context.Background(), progress.ProgressRecord{
		SessionID:        "sess",
		LessonID:         "es-1",
		CurrentStepIndex: 2,
		TotalSteps:       3,
		ElapsedSeconds:   42,
		Score:            1,
		Answers:          map[string]string{"ex1": "B"},
	})
	if err != nil {
		t.Fatalf("SaveProgress() error = %v", err)
	}

	for _, key := range []string{"currentStepIndex", "totalSteps", "elapsedSeconds", "score", "answers"} {
		if _, ok := got[key]; !ok {
			t.Errorf("payload missing %q: %v", key, got)
		}
	}
	if got["currentStepIndex"] != float64(2) || got["elapsedSeconds"] != float64(42) {
		t.Errorf("payload = %v", got)
	}
}

func TestHTTPSink_SaveProgressRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok": false}`))
	}))
	defer server.Close()

	if err := newSink(server.URL).SaveProgress(context.Background(), progress.ProgressRecord{LessonID: "x"}); err == nil {
		t.Error("SaveProgress() should fail when the service answers ok=false")
	}
}

func TestHTTPSink_SubmitCompletion(t *testing.T) {
	var got progress.CompletionRecord
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lessons/es-1/complete" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"success": true, "newAchievements": [{"badgeName": "Polyglot", "points": 50}]}`))
	}))
	defer server.Close()

	res, err := newSink(server.URL).SubmitCompletion(context.Background(), progress.CompletionRecord{
		LessonID: "es-1", Score: 100, DurationSeconds: 300, SectionsCompleted: 3,
	})
	if err != nil {
		t.Fatalf("SubmitCompletion() error = %v", err)
	}
	if got.Score != 100 || got.DurationSeconds != 300 || got.SectionsCompleted != 3 {
		t.Errorf("payload = %+v", got)
	}
	if len(res.NewAchievements) != 1 {
		t.Fatalf("NewAchievements = %v", res.NewAchievements)
	}
	var badge map[string]any
	_ = json.Unmarshal(res.NewAchievements[0], &badge)
	if badge["badgeName"] != "Polyglot" || badge["points"] != float64(50) {
		t.Errorf("achievement not passed through unchanged: %s", res.NewAchievements[0])
	}
}

func TestHTTPSink_SubmitCompletionFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "db down"},
		{"not success", http.StatusOK, `{"success": false}`},
		{"garbage", http.StatusOK, `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			if _, err := newSink(server.URL).SubmitCompletion(context.Background(), progress.CompletionRecord{LessonID: "x"}); err == nil {
				t.Error("SubmitCompletion() error = nil")
			}
		})
	}
}
