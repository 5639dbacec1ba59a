// Package progress persists in-flight lesson progress and final completion records.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// PassScore is the final percentage at which a lesson counts as passed.
const PassScore = 70

// ProgressRecord is one autosave snapshot.
type ProgressRecord struct {
	SessionID        string            `json:"sessionId"`
	LessonID         string            `json:"lessonId"`
	LearnerID        string            `json:"learnerId,omitempty"`
	CurrentStepIndex int               `json:"currentStepIndex"`
	TotalSteps       int               `json:"totalSteps"`
	ElapsedSeconds   int               `json:"elapsedSeconds"`
	Score            int               `json:"score"`
	Answers          map[string]string `json:"answers"`
}

// CompletionRecord is submitted once the learner finishes a lesson.
type CompletionRecord struct {
	SessionID         string `json:"sessionId"`
	LessonID          string `json:"lessonId"`
	LearnerID         string `json:"learnerId,omitempty"`
	Score             int    `json:"score"`
	DurationSeconds   int    `json:"durationSeconds"`
	SectionsCompleted int    `json:"sectionsCompleted"`
}

// CompletionResult is the persistence layer's answer to a completion.
// Achievements are computed elsewhere and passed through untouched.
type CompletionResult struct {
	Success         bool              `json:"success"`
	NewAchievements []json.RawMessage `json:"newAchievements,omitempty"`
}

// Sink is the external persistence for progress and completions.
type Sink interface {
	SaveProgress(ctx context.Context, rec ProgressRecord) error
	SubmitCompletion(ctx context.Context, rec CompletionRecord) (CompletionResult, error)
}

// FinalScorePercent is round(100*correct/scorable). A lesson with nothing to
// grade earns full credit.
func FinalScorePercent(correct, scorable int) int {
	if scorable <= 0 {
		return 100
	}
	return int(math.Round(100 * float64(correct) / float64(scorable)))
}

// Passed reports whether a final score passes the lesson.
func Passed(score int) bool {
	return score >= PassScore
}

// CompletionMessage is the learner-facing summary of a finished lesson.
func CompletionMessage(score, durationSeconds int) string {
	if Passed(score) {
		return fmt.Sprintf("Great job! You scored %d%% and completed the lesson in %d minutes.", score, durationSeconds/60)
	}
	return fmt.Sprintf("You scored %d%%. Try reviewing the material and retaking the lesson.", score)
}

func copyAnswers(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
