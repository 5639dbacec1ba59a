// Package evaluation scores learner responses to exercise and speech steps.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/pai-lesson/internal/lesson"
)

// PassThreshold is the minimum pronunciation score counted as correct.
const PassThreshold = 70

var (
	// ErrNotGradable means the step is not an exercise or speech step with valid content.
	ErrNotGradable = errors.New("step is not gradable")
	// ErrServiceUnavailable means the pronunciation service could not be reached
	// or reported a failure.
	ErrServiceUnavailable = errors.New("pronunciation service unavailable")
	// ErrMalformedResponse means the pronunciation service answered with an unreadable body.
	ErrMalformedResponse = errors.New("malformed pronunciation response")
)

// Feedback is the outcome of one evaluated attempt. Incorrect answers are
// feedback, not errors.
type Feedback struct {
	Correct bool   `json:"correct"`
	Message string `json:"message"`
}

// SpeechResult is the pronunciation service verdict for one recording.
type SpeechResult struct {
	Score        int    `json:"score"`
	SpokenText   string `json:"spokenText"`
	ExpectedText string `json:"expectedText"`
	Feedback     string `json:"feedback"`
}

// SpeechRequest is one recording submitted for scoring.
type SpeechRequest struct {
	Audio        []byte
	ContentType  string
	ExpectedText string
	Language     string
}

// Scorer is the external pronunciation service.
type Scorer interface {
	Score(ctx context.Context, req SpeechRequest) (SpeechResult, error)
}

// Evaluator grades exercise answers locally and delegates speech to a Scorer.
type Evaluator struct {
	scorer Scorer
}

// NewEvaluator creates an evaluator. scorer may be nil when no speech steps
// are expected; speech evaluation then fails with ErrServiceUnavailable.
func NewEvaluator(scorer Scorer) *Evaluator {
	return &Evaluator{scorer: scorer}
}

// Exercise grades a multiple-choice or fill-blank answer.
func (e *Evaluator) Exercise(step lesson.Step, answer string) (Feedback, error) {
	if step.Type != lesson.StepExercise {
		return Feedback{}, fmt.Errorf("%w: step %s is %s", ErrNotGradable, step.ID, step.Type)
	}
	if err := lesson.Validate(step); err != nil {
		return Feedback{}, fmt.Errorf("%w: %w", ErrNotGradable, err)
	}

	ex := step.Exercise
	if MatchAnswer(answer, ex.ExpectedAnswer, ex.CaseInsensitive) {
		return Feedback{Correct: true, Message: "Excellent work! You got it!"}, nil
	}
	return Feedback{
		Correct: false,
		Message: "Good effort! Let's try that again. Remember: " + ex.ExpectedAnswer,
	}, nil
}

// MatchAnswer compares a submitted answer with the expected one after trimming
// and Unicode normalisation. Case folding applies only when requested.
func MatchAnswer(submitted, expected string, caseInsensitive bool) bool {
	a := norm.NFC.String(strings.TrimSpace(submitted))
	b := norm.NFC.String(strings.TrimSpace(expected))
	if caseInsensitive {
		fold := cases.Fold()
		a, b = fold.String(a), fold.String(b)
	}
	return a == b
}

// Speech sends a recording to the pronunciation service and grades the
// returned score against PassThreshold. Service failures are returned as
// errors and must not be recorded as incorrect answers.
func (e *Evaluator) Speech(ctx context.Context, step lesson.Step, audio []byte, language string) (Feedback, SpeechResult, error) {
	if step.Type != lesson.StepSpeech {
		return Feedback{}, SpeechResult{}, fmt.Errorf("%w: step %s is %s", ErrNotGradable, step.ID, step.Type)
	}
	if err := lesson.Validate(step); err != nil {
		return Feedback{}, SpeechResult{}, fmt.Errorf("%w: %w", ErrNotGradable, err)
	}
	if e.scorer == nil {
		return Feedback{}, SpeechResult{}, fmt.Errorf("%w: no scorer configured", ErrServiceUnavailable)
	}

	res, err := e.scorer.Score(ctx, SpeechRequest{
		Audio:        audio,
		ContentType:  "audio/wav",
		ExpectedText: step.Speech.ExpectedText,
		Language:     language,
	})
	if err != nil {
		return Feedback{}, SpeechResult{}, err
	}
	if res.ExpectedText == "" {
		res.ExpectedText = step.Speech.ExpectedText
	}

	if res.Score >= PassThreshold {
		return Feedback{Correct: true, Message: fmt.Sprintf("Excellent! Pronunciation score: %d%%", res.Score)}, res, nil
	}
	return Feedback{
		Correct: false,
		Message: fmt.Sprintf("Keep practicing! You said: \"%s\". Try to match: \"%s\"", res.SpokenText, res.ExpectedText),
	}, res, nil
}

// RoundScore converts a raw 0-100 service score to a whole percentage.
func RoundScore(raw float64) int {
	s := int(math.Round(raw))
	switch {
	case s < 0:
		return 0
	case s > 100:
		return 100
	}
	return s
}

// Tier is a presentation band for a pronunciation score. It never affects grading.
type Tier string

const (
	TierSuccess  Tier = "success"
	TierClose    Tier = "close"
	TierTryAgain Tier = "try-again"
)

// Band classifies a score for display.
func Band(score int) Tier {
	switch {
	case score >= 90:
		return TierSuccess
	case score >= PassThreshold:
		return TierClose
	}
	return TierTryAgain
}
