package lesson_test

import (
	"errors"
	"testing"

	"github.com/p-n-ai/pai-lesson/internal/lesson"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		step    lesson.Step
		wantErr bool
	}{
		{
			"text ok",
			lesson.Step{ID: "a", Type: lesson.StepText, Text: &lesson.TextContent{Body: "hi"}},
			false,
		},
		{
			"text missing payload",
			lesson.Step{ID: "a", Type: lesson.StepText},
			true,
		},
		{
			"summary empty body",
			lesson.Step{ID: "a", Type: lesson.StepSummary, Text: &lesson.TextContent{}},
			true,
		},
		{
			"audio without url",
			lesson.Step{ID: "a", Type: lesson.StepAudio, Media: &lesson.MediaContent{Transcript: "t"}},
			true,
		},
		{
			"fill-blank ok",
			lesson.Step{ID: "a", Type: lesson.StepExercise, Exercise: &lesson.ExerciseContent{
				Question: "2+2", Kind: lesson.KindFillBlank, ExpectedAnswer: "4",
			}},
			false,
		},
		{
			"unknown kind",
			lesson.Step{ID: "a", Type: lesson.StepExercise, Exercise: &lesson.ExerciseContent{
				Question: "2+2", Kind: "essay", ExpectedAnswer: "4",
			}},
			true,
		},
		{
			"multiple-choice single option",
			lesson.Step{ID: "a", Type: lesson.StepExercise, Exercise: &lesson.ExerciseContent{
				Question: "q", Kind: lesson.KindMultipleChoice, Options: []string{"A"}, ExpectedAnswer: "A",
			}},
			true,
		},
		{
			"multiple-choice answer not offered",
			lesson.Step{ID: "a", Type: lesson.StepExercise, Exercise: &lesson.ExerciseContent{
				Question: "q", Kind: lesson.KindMultipleChoice, Options: []string{"A", "B"}, ExpectedAnswer: "C",
			}},
			true,
		},
		{
			"speech ok",
			lesson.Step{ID: "a", Type: lesson.StepSpeech, Speech: &lesson.SpeechContent{
				Prompt: "Say hola", ExpectedText: "hola", Language: "es-ES",
			}},
			false,
		},
		{
			"speech missing expected text",
			lesson.Step{ID: "a", Type: lesson.StepSpeech, Speech: &lesson.SpeechContent{Prompt: "Say hola"}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := lesson.Validate(tt.step)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, lesson.ErrInvalidContent) {
				t.Errorf("Validate() error = %v, want ErrInvalidContent", err)
			}
		})
	}
}
