package progress_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/pai-lesson/internal/progress"
)

func TestFinalScorePercent(t *testing.T) {
	tests := []struct {
		name              string
		correct, scorable int
		want              int
	}{
		{"all correct", 2, 2, 100},
		{"none scorable", 0, 0, 100},
		{"one of three", 1, 3, 33},
		{"two of three", 2, 3, 67},
		{"half rounds up", 1, 8, 13},
		{"none correct", 0, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := progress.FinalScorePercent(tt.correct, tt.scorable); got != tt.want {
				t.Errorf("FinalScorePercent(%d, %d) = %d, want %d", tt.correct, tt.scorable, got, tt.want)
			}
		})
	}
}

func TestCompletionMessage(t *testing.T) {
	if got := progress.CompletionMessage(85, 330); got != "Great job! You scored 85% and completed the lesson in 5 minutes." {
		t.Errorf("CompletionMessage(pass) = %q", got)
	}
	if got := progress.CompletionMessage(40, 330); got != "You scored 40%. Try reviewing the material and retaking the lesson." {
		t.Errorf("CompletionMessage(fail) = %q", got)
	}
	if !progress.Passed(70) || progress.Passed(69) {
		t.Error("Passed() threshold should be 70")
	}
}

func TestMemorySink(t *testing.T) {
	ctx := context.Background()
	sink := progress.NewMemorySink()
	answers := map[string]string{"ex1": "B"}

	sink.FailProgress(1)
	if err := sink.SaveProgress(ctx, progress.ProgressRecord{SessionID: "s", CurrentStepIndex: 1, Answers: answers}); !errors.Is(err, progress.ErrInjected) {
		t.Fatalf("SaveProgress() error = %v, want ErrInjected", err)
	}
	if err := sink.SaveProgress(ctx, progress.ProgressRecord{SessionID: "s", CurrentStepIndex: 2, Answers: answers}); err != nil {
		t.Fatalf("SaveProgress() error = %v", err)
	}
	answers["ex1"] = "mutated"

	latest, ok := sink.Latest("s")
	if !ok || latest.CurrentStepIndex != 2 || latest.Answers["ex1"] != "B" {
		t.Errorf("Latest() = %+v, %v", latest, ok)
	}

	sink.AwardOnCompletion("first-lesson")
	res, err := sink.SubmitCompletion(ctx, progress.CompletionRecord{SessionID: "s", Score: 100})
	if err != nil {
		t.Fatalf("SubmitCompletion() error = %v", err)
	}
	if !res.Success || len(res.NewAchievements) != 1 || string(res.NewAchievements[0]) != `{"badgeName":"first-lesson"}` {
		t.Errorf("SubmitCompletion() = %+v", res)
	}

	calls := sink.Calls()
	if len(calls) != 3 || calls[0].Err == nil || calls[2].Kind != progress.CallCompletion {
		t.Errorf("Calls() = %+v", calls)
	}
	if len(sink.Completions()) != 1 {
		t.Errorf("Completions() = %d, want 1", len(sink.Completions()))
	}
}
