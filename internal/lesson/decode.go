package lesson

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-lesson/internal/accessibility"
)

var (
	// ErrNotFound means the lesson does not exist.
	ErrNotFound = errors.New("lesson not found")
	// ErrMalformed means the lesson document is structurally invalid (e.g. no steps).
	ErrMalformed = errors.New("malformed lesson")
)

const lessonSchema = `{
  "type": "object",
  "required": ["id", "steps"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "title": {"type": "string"},
    "description": {"type": "string"},
    "estimatedDurationMinutes": {"type": "number", "minimum": 0},
    "competencies": {"type": "array", "items": {"type": "string"}},
    "accessibilityTags": {"type": "array", "items": {"type": "string"}},
    "disabilityTypes": {"type": "array", "items": {"type": "string"}},
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "type": {"enum": ["text", "audio", "video", "exercise", "speech", "instruction", "summary"]},
          "title": {"type": "string"}
        }
      }
    }
  }
}`

var schema = mustSchema(lessonSchema)

func mustSchema(s string) *gojsonschema.Schema {
	sc, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("lesson schema: %v", err))
	}
	return sc
}

type wireLesson struct {
	ID                       string     `json:"id"`
	Title                    string     `json:"title"`
	Description              string     `json:"description"`
	EstimatedDurationMinutes float64    `json:"estimatedDurationMinutes"`
	Competencies             []string   `json:"competencies"`
	AccessibilityTags        []string   `json:"accessibilityTags"`
	DisabilityTypes          []string   `json:"disabilityTypes"` // legacy name for accessibilityTags
	Steps                    []wireStep `json:"steps"`
}

type wireStep struct {
	ID      string          `json:"id"`
	Type    StepType        `json:"type"`
	Title   string          `json:"title"`
	Content json.RawMessage `json:"content"`
}

// Decode parses and structurally validates a lesson document. A missing or empty
// steps list is reported as ErrMalformed. Step payloads are decoded leniently:
// an unreadable payload leaves the step's content nil instead of failing the lesson.
func Decode(data []byte) (*Lesson, error) {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformed, strings.Join(msgs, "; "))
	}

	var w wireLesson
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	tags := w.AccessibilityTags
	if len(tags) == 0 {
		tags = w.DisabilityTypes
	}

	l := &Lesson{
		ID:                       w.ID,
		Title:                    w.Title,
		Description:              w.Description,
		EstimatedDurationMinutes: int(w.EstimatedDurationMinutes),
		Competencies:             w.Competencies,
		AccessibilityTags:        parseTags(w.ID, tags),
		Steps:                    make([]Step, 0, len(w.Steps)),
	}
	for _, ws := range w.Steps {
		l.Steps = append(l.Steps, decodeStep(ws))
	}
	return l, nil
}

func parseTags(lessonID string, tags []string) []accessibility.Mode {
	modes := make([]accessibility.Mode, 0, len(tags))
	for _, t := range tags {
		m, err := accessibility.ParseMode(t)
		if err != nil {
			slog.Warn("ignoring unknown accessibility tag", "lesson_id", lessonID, "tag", t)
			continue
		}
		modes = append(modes, m)
	}
	return modes
}

func decodeStep(ws wireStep) Step {
	s := Step{ID: ws.ID, Type: ws.Type, Title: ws.Title}
	raw := ws.Content
	if len(raw) == 0 || string(raw) == "null" {
		return s
	}

	switch {
	case ws.Type.TextLike():
		// Authoring tools sometimes store the body directly as a string.
		var body string
		if err := json.Unmarshal(raw, &body); err == nil {
			s.Text = &TextContent{Body: body}
			return s
		}
		s.Text = decodeInto[TextContent](ws, raw)
	case ws.Type.Media():
		s.Media = decodeInto[MediaContent](ws, raw)
	case ws.Type == StepExercise:
		s.Exercise = decodeInto[ExerciseContent](ws, raw)
	case ws.Type == StepSpeech:
		s.Speech = decodeInto[SpeechContent](ws, raw)
	}
	return s
}

func decodeInto[T any](ws wireStep, raw json.RawMessage) *T {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Warn("unreadable step content", "step_id", ws.ID, "type", ws.Type, "error", err)
		return nil
	}
	return &v
}
