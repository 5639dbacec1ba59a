package evaluation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/pai-lesson/internal/evaluation"
	"github.com/p-n-ai/pai-lesson/internal/lesson"
)

func exerciseStep(kind lesson.ExerciseKind, answer string, caseInsensitive bool) lesson.Step {
	ex := &lesson.ExerciseContent{Question: "q", Kind: kind, ExpectedAnswer: answer, CaseInsensitive: caseInsensitive}
	if kind == lesson.KindMultipleChoice {
		ex.Options = []string{"A", "B", "C"}
	}
	return lesson.Step{ID: "ex", Type: lesson.StepExercise, Exercise: ex}
}

func speechStep() lesson.Step {
	return lesson.Step{ID: "sp", Type: lesson.StepSpeech, Speech: &lesson.SpeechContent{Prompt: "Say it", ExpectedText: "buenos días"}}
}

func TestEvaluator_Exercise(t *testing.T) {
	tests := []struct {
		name    string
		step    lesson.Step
		answer  string
		correct bool
	}{
		{"choice correct", exerciseStep(lesson.KindMultipleChoice, "B", false), "B", true},
		{"choice wrong", exerciseStep(lesson.KindMultipleChoice, "B", false), "A", false},
		{"trimmed", exerciseStep(lesson.KindFillBlank, "hola", false), "  hola\n", true},
		{"case sensitive by default", exerciseStep(lesson.KindFillBlank, "Hola", false), "hola", false},
		{"case folding opt-in", exerciseStep(lesson.KindFillBlank, "Hola", true), "HOLA", true},
		{"unicode normalised", exerciseStep(lesson.KindFillBlank, "adi\u00f3s", false), "adio\u0301s", true},
	}

	e := evaluation.NewEvaluator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb, err := e.Exercise(tt.step, tt.answer)
			if err != nil {
				t.Fatalf("Exercise() error = %v", err)
			}
			if fb.Correct != tt.correct {
				t.Errorf("Exercise() correct = %v, want %v", fb.Correct, tt.correct)
			}
		})
	}
}

func TestEvaluator_ExerciseMessages(t *testing.T) {
	e := evaluation.NewEvaluator(nil)
	step := exerciseStep(lesson.KindMultipleChoice, "C", false)

	fb, _ := e.Exercise(step, "C")
	if fb.Message != "Excellent work! You got it!" {
		t.Errorf("correct message = %q", fb.Message)
	}
	fb, _ = e.Exercise(step, "A")
	if fb.Message != "Good effort! Let's try that again. Remember: C" {
		t.Errorf("incorrect message = %q", fb.Message)
	}
}

func TestEvaluator_ExerciseNotGradable(t *testing.T) {
	e := evaluation.NewEvaluator(nil)

	_, err := e.Exercise(lesson.Step{ID: "t", Type: lesson.StepText}, "x")
	if !errors.Is(err, evaluation.ErrNotGradable) {
		t.Errorf("Exercise(text) error = %v, want ErrNotGradable", err)
	}
	_, err = e.Exercise(lesson.Step{ID: "e", Type: lesson.StepExercise}, "x")
	if !errors.Is(err, evaluation.ErrNotGradable) {
		t.Errorf("Exercise(no content) error = %v, want ErrNotGradable", err)
	}
}

func TestEvaluator_Speech(t *testing.T) {
	tests := []struct {
		name    string
		score   int
		correct bool
		message string
	}{
		{"pass", 85, true, "Excellent! Pronunciation score: 85%"},
		{"exact threshold", evaluation.PassThreshold, true, "Excellent! Pronunciation score: 70%"},
		{"below", 69, false, `Keep practicing! You said: "buenos dias". Try to match: "buenos días"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer := evaluation.NewMockScorer(tt.score, "buenos dias")
			e := evaluation.NewEvaluator(scorer)

			fb, res, err := e.Speech(context.Background(), speechStep(), []byte("RIFF"), "es-ES")
			if err != nil {
				t.Fatalf("Speech() error = %v", err)
			}
			if fb.Correct != tt.correct || fb.Message != tt.message {
				t.Errorf("Speech() = %+v, want correct=%v message=%q", fb, tt.correct, tt.message)
			}
			if res.Score != tt.score {
				t.Errorf("SpeechResult.Score = %d", res.Score)
			}
			if scorer.LastRequest.ExpectedText != "buenos días" || scorer.LastRequest.Language != "es-ES" {
				t.Errorf("request = %+v", scorer.LastRequest)
			}
		})
	}
}

func TestEvaluator_SpeechMessageKeepsTranscriptVerbatim(t *testing.T) {
	e := evaluation.NewEvaluator(evaluation.NewMockScorer(40, `dijo "hola"`))

	fb, _, err := e.Speech(context.Background(), speechStep(), []byte("RIFF"), "es-ES")
	if err != nil {
		t.Fatalf("Speech() error = %v", err)
	}
	want := `Keep practicing! You said: "dijo "hola"". Try to match: "buenos días"`
	if fb.Message != want {
		t.Errorf("Message = %q, want %q", fb.Message, want)
	}
}

func TestEvaluator_SpeechServiceError(t *testing.T) {
	scorer := &evaluation.MockScorer{Err: evaluation.ErrServiceUnavailable}
	e := evaluation.NewEvaluator(scorer)

	fb, _, err := e.Speech(context.Background(), speechStep(), []byte("RIFF"), "es-ES")
	if !errors.Is(err, evaluation.ErrServiceUnavailable) {
		t.Errorf("Speech() error = %v, want ErrServiceUnavailable", err)
	}
	if fb.Message != "" || fb.Correct {
		t.Errorf("Speech() feedback = %+v, want zero value on failure", fb)
	}
}

func TestEvaluator_SpeechNoScorer(t *testing.T) {
	_, _, err := evaluation.NewEvaluator(nil).Speech(context.Background(), speechStep(), nil, "es-ES")
	if !errors.Is(err, evaluation.ErrServiceUnavailable) {
		t.Errorf("Speech() error = %v, want ErrServiceUnavailable", err)
	}
}

func TestBand(t *testing.T) {
	tests := map[int]evaluation.Tier{
		100: evaluation.TierSuccess,
		90:  evaluation.TierSuccess,
		89:  evaluation.TierClose,
		70:  evaluation.TierClose,
		69:  evaluation.TierTryAgain,
		0:   evaluation.TierTryAgain,
	}
	for score, want := range tests {
		if got := evaluation.Band(score); got != want {
			t.Errorf("Band(%d) = %q, want %q", score, got, want)
		}
	}
}

func TestRoundScore(t *testing.T) {
	tests := map[float64]int{69.5: 70, 69.4: 69, -3: 0, 104: 100}
	for raw, want := range tests {
		if got := evaluation.RoundScore(raw); got != want {
			t.Errorf("RoundScore(%v) = %d, want %d", raw, got, want)
		}
	}
}

func TestMatchAnswer(t *testing.T) {
	if !evaluation.MatchAnswer(" Straße ", "STRASSE", true) {
		t.Error("MatchAnswer() should fold ß when case-insensitive")
	}
	if evaluation.MatchAnswer("b", "B", false) {
		t.Error("MatchAnswer() should be case-sensitive by default")
	}
}
