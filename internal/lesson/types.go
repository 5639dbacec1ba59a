// Package lesson holds the lesson data model and the sources lessons are fetched from.
package lesson

import "github.com/p-n-ai/pai-lesson/internal/accessibility"

// StepType identifies the payload shape of a step.
type StepType string

const (
	StepText        StepType = "text"
	StepAudio       StepType = "audio"
	StepVideo       StepType = "video"
	StepExercise    StepType = "exercise"
	StepSpeech      StepType = "speech"
	StepInstruction StepType = "instruction"
	StepSummary     StepType = "summary"
)

// Scorable reports whether steps of this type count towards the final score.
func (t StepType) Scorable() bool {
	return t == StepExercise || t == StepSpeech
}

// TextLike reports whether the step carries a plain body string.
func (t StepType) TextLike() bool {
	return t == StepText || t == StepInstruction || t == StepSummary
}

// Media reports whether the step plays an audio or video resource.
func (t StepType) Media() bool {
	return t == StepAudio || t == StepVideo
}

// ExerciseKind selects how an exercise answer is captured.
type ExerciseKind string

const (
	KindMultipleChoice ExerciseKind = "multiple-choice"
	KindFillBlank      ExerciseKind = "fill-blank"
)

// Lesson is immutable for the duration of a session.
type Lesson struct {
	ID                       string               `json:"id"`
	Title                    string               `json:"title"`
	Description              string               `json:"description"`
	EstimatedDurationMinutes int                  `json:"estimatedDurationMinutes"`
	Competencies             []string             `json:"competencies"`
	AccessibilityTags        []accessibility.Mode `json:"accessibilityTags"`
	Steps                    []Step               `json:"steps"`
}

// ScorableSteps counts the exercise and speech steps.
func (l *Lesson) ScorableSteps() int {
	n := 0
	for _, s := range l.Steps {
		if s.Type.Scorable() {
			n++
		}
	}
	return n
}

// StepByID returns the step with the given id.
func (l *Lesson) StepByID(id string) (Step, int, bool) {
	for i, s := range l.Steps {
		if s.ID == id {
			return s, i, true
		}
	}
	return Step{}, -1, false
}

// Step is one unit of lesson content. Exactly one content pointer is set for a
// well-formed step; a nil pointer means the payload was missing or unreadable.
type Step struct {
	ID       string           `json:"id"`
	Type     StepType         `json:"type"`
	Title    string           `json:"title"`
	Text     *TextContent     `json:"text,omitempty"`
	Media    *MediaContent    `json:"media,omitempty"`
	Exercise *ExerciseContent `json:"exercise,omitempty"`
	Speech   *SpeechContent   `json:"speech,omitempty"`
}

// TextContent is the payload of text, instruction and summary steps.
type TextContent struct {
	Body string `json:"text" validate:"required"`
}

// MediaContent is the payload of audio and video steps.
type MediaContent struct {
	URL        string `json:"url" validate:"required"`
	Transcript string `json:"transcript,omitempty"`
	Captions   string `json:"captions,omitempty"`
	Body       string `json:"text,omitempty"`
}

// ExerciseContent is the payload of exercise steps.
type ExerciseContent struct {
	Question        string       `json:"question" validate:"required"`
	Kind            ExerciseKind `json:"kind" validate:"required,oneof=multiple-choice fill-blank"`
	Options         []string     `json:"options,omitempty" validate:"omitempty,dive,required"`
	ExpectedAnswer  string       `json:"expectedAnswer" validate:"required"`
	CaseInsensitive bool         `json:"caseInsensitive,omitempty"`
}

// SpeechContent is the payload of speech steps.
type SpeechContent struct {
	Prompt       string `json:"prompt" validate:"required"`
	ExpectedText string `json:"expectedText" validate:"required"`
	Language     string `json:"language,omitempty" validate:"omitempty,bcp47_language_tag"`
}

// Body returns the readable text of a step, whatever its type.
func (s Step) Body() string {
	switch {
	case s.Text != nil:
		return s.Text.Body
	case s.Media != nil:
		return s.Media.Body
	case s.Exercise != nil:
		return s.Exercise.Question
	case s.Speech != nil:
		return s.Speech.Prompt
	}
	return ""
}
