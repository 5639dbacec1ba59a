// Package presentation turns the current step and the active accessibility
// modes into render instructions for the client.
package presentation

import (
	"fmt"
	"math"
	"strings"

	"github.com/p-n-ai/pai-lesson/internal/accessibility"
	"github.com/p-n-ai/pai-lesson/internal/lesson"
)

// DefaultSpeechLanguage is used when neither the step nor the learner names one.
const DefaultSpeechLanguage = "es-ES"

// SubState is the per-step reading state, reset whenever the step changes.
type SubState struct {
	SentenceIndex   int  `json:"sentenceIndex"`
	HighlightOffset *int `json:"highlightOffset"`
}

// ScheduleInput is the lesson-wide context a plan is rendered in.
type ScheduleInput struct {
	Steps                    []lesson.Step
	CurrentIndex             int
	ElapsedSeconds           int
	EstimatedDurationMinutes int
	Preferences              *accessibility.Preferences
	Media                    *MediaState
}

// RenderPlan is everything the client needs to draw one step.
type RenderPlan struct {
	StepID     string               `json:"stepId"`
	StepType   lesson.StepType      `json:"stepType"`
	Title      string               `json:"title"`
	Empty      bool                 `json:"empty,omitempty"`
	Header     Header               `json:"header"`
	Typography Typography           `json:"typography"`
	Modes      []accessibility.Mode `json:"modes"`
	Paragraphs []Paragraph          `json:"paragraphs,omitempty"`
	Sentence   *SentenceView        `json:"sentence,omitempty"`
	Narration  *Narration           `json:"narration,omitempty"`
	Schedule   []ScheduleEntry      `json:"schedule,omitempty"`
	Media      *MediaView           `json:"media,omitempty"`
	Exercise   *ExerciseView        `json:"exercise,omitempty"`
	Speech     *SpeechView          `json:"speech,omitempty"`
}

// Header is the progress bar and timer shown above every step.
type Header struct {
	ProgressPercent int    `json:"progressPercent"`
	SectionLabel    string `json:"sectionLabel"`
	Clock           string `json:"clock"`
	FocusMinutes    int    `json:"focusMinutes,omitempty"`
}

// Typography carries the learner's reading preferences as CSS-ready values.
type Typography struct {
	FontFamily      string  `json:"fontFamily"`
	FontSizePx      int     `json:"fontSizePx"`
	LineSpacing     float64 `json:"lineSpacing"`
	LetterSpacingEm float64 `json:"letterSpacingEm"`
}

// SentenceView shows one sentence of a text step at a time.
type SentenceView struct {
	Index   int    `json:"index"`
	Total   int    `json:"total"`
	Text    string `json:"text"`
	HasPrev bool   `json:"hasPrev"`
	HasNext bool   `json:"hasNext"`
}

// Narration is a read-aloud affordance bound to the full step text.
type Narration struct {
	Text string `json:"text"`
}

// ScheduleStatus marks a step's place relative to the current one.
type ScheduleStatus string

const (
	ScheduleCompleted ScheduleStatus = "completed"
	ScheduleCurrent   ScheduleStatus = "current"
	ScheduleUpcoming  ScheduleStatus = "upcoming"
)

// ScheduleEntry is one row of the visual schedule.
type ScheduleEntry struct {
	StepID string          `json:"stepId"`
	Title  string          `json:"title"`
	Type   lesson.StepType `json:"type"`
	Status ScheduleStatus  `json:"status"`
}

// MediaView describes an audio or video player.
type MediaView struct {
	URL        string     `json:"url"`
	Video      bool       `json:"video"`
	Body       string     `json:"body,omitempty"`
	Transcript string     `json:"transcript,omitempty"`
	Captions   string     `json:"captions,omitempty"`
	State      MediaState `json:"state"`
}

// ExerciseView is the question without its answer.
type ExerciseView struct {
	Question string              `json:"question"`
	Kind     lesson.ExerciseKind `json:"kind"`
	Options  []string            `json:"options,omitempty"`
}

// SpeechView is the pronunciation prompt.
type SpeechView struct {
	Prompt       string `json:"prompt"`
	ExpectedText string `json:"expectedText"`
	Language     string `json:"language"`
}

// Plan decides how to render step. Invalid step content yields a plan with
// Empty set and no content, so the step can still be navigated.
func Plan(step lesson.Step, modes accessibility.EffectiveModes, sub SubState, in ScheduleInput) RenderPlan {
	p := RenderPlan{
		StepID:     step.ID,
		StepType:   step.Type,
		Title:      step.Title,
		Header:     header(modes, in),
		Typography: typography(in.Preferences),
		Modes:      modes.List(),
	}
	if modes.Has(accessibility.ModeAutism) {
		p.Schedule = schedule(in.Steps, in.CurrentIndex)
	}

	if err := lesson.Validate(step); err != nil {
		p.Empty = true
		return p
	}

	switch {
	case step.Type == lesson.StepText:
		planText(&p, step.Text.Body, modes, sub)
	case step.Type.TextLike():
		p.Paragraphs = markParagraphs(step.Text.Body, highlight(step.Text.Body, sub))
	case step.Type.Media():
		p.Media = mediaView(step, modes, in.Media)
	case step.Type == lesson.StepExercise:
		ex := step.Exercise
		p.Exercise = &ExerciseView{Question: ex.Question, Kind: ex.Kind, Options: ex.Options}
	case step.Type == lesson.StepSpeech:
		p.Speech = &SpeechView{
			Prompt:       step.Speech.Prompt,
			ExpectedText: step.Speech.ExpectedText,
			Language:     SpeechLanguage(step, in.Preferences),
		}
	}
	return p
}

func planText(p *RenderPlan, body string, modes accessibility.EffectiveModes, sub SubState) {
	if modes.Has(accessibility.ModeDyslexia) || modes.Has(accessibility.ModeAPD) {
		p.Narration = &Narration{Text: body}
	}
	if modes.Has(accessibility.ModeADHD) {
		sentences := SplitSentences(body)
		i := ClampSentence(sub.SentenceIndex, len(sentences))
		v := &SentenceView{Index: i, Total: len(sentences)}
		if len(sentences) > 0 {
			v.Text = sentences[i]
			v.HasPrev = i > 0
			v.HasNext = i < len(sentences)-1
		}
		p.Sentence = v
		return
	}
	p.Paragraphs = markParagraphs(body, highlight(body, sub))
}

func highlight(body string, sub SubState) *Highlight {
	if sub.HighlightOffset == nil {
		return nil
	}
	hl, ok := HighlightWord(body, *sub.HighlightOffset)
	if !ok {
		return nil
	}
	return &hl
}

// SpeechLanguage picks the recognition language: step, then learner, then default.
func SpeechLanguage(step lesson.Step, prefs *accessibility.Preferences) string {
	if step.Speech != nil && step.Speech.Language != "" {
		return step.Speech.Language
	}
	if prefs != nil && prefs.SpeechRecLanguage != "" {
		return prefs.SpeechRecLanguage
	}
	return DefaultSpeechLanguage
}

func mediaView(step lesson.Step, modes accessibility.EffectiveModes, state *MediaState) *MediaView {
	st := NewMediaState(modes.Has(accessibility.ModeADHD))
	if state != nil {
		st = *state
	}
	v := &MediaView{
		URL:   step.Media.URL,
		Video: step.Type == lesson.StepVideo,
		Body:  step.Media.Body,
		State: st,
	}
	if st.TranscriptVisible {
		v.Transcript = step.Media.Transcript
	}
	if v.Video {
		v.Captions = step.Media.Captions
	}
	return v
}

func schedule(steps []lesson.Step, current int) []ScheduleEntry {
	out := make([]ScheduleEntry, len(steps))
	for i, s := range steps {
		status := ScheduleUpcoming
		switch {
		case i < current:
			status = ScheduleCompleted
		case i == current:
			status = ScheduleCurrent
		}
		out[i] = ScheduleEntry{StepID: s.ID, Title: s.Title, Type: s.Type, Status: status}
	}
	return out
}

func header(modes accessibility.EffectiveModes, in ScheduleInput) Header {
	n := len(in.Steps)
	h := Header{Clock: FormatClock(in.ElapsedSeconds)}
	if n == 0 {
		return h
	}
	h.ProgressPercent = int(math.Round(float64(in.CurrentIndex+1) / float64(n) * 100))
	h.SectionLabel = fmt.Sprintf("Section %d of %d", in.CurrentIndex+1, n)
	if modes.Has(accessibility.ModeADHD) && in.EstimatedDurationMinutes > 0 {
		h.FocusMinutes = int(math.Ceil(float64(in.EstimatedDurationMinutes) / float64(n)))
	}
	return h
}

// FormatClock renders seconds as m:ss.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func typography(prefs *accessibility.Preferences) Typography {
	p := accessibility.DefaultPreferences()
	if prefs != nil {
		p = *prefs
	}
	return Typography{
		FontFamily:      fontFamily(p.FontFamily),
		FontSizePx:      p.FontSize,
		LineSpacing:     p.LineSpacing,
		LetterSpacingEm: p.LetterSpacing,
	}
}

func fontFamily(name string) string {
	switch strings.ToLower(name) {
	case "lexend":
		return "Lexend"
	case "opendyslexic":
		return "OpenDyslexic"
	case "atkinson":
		return "Atkinson Hyperlegible"
	}
	return "system-ui"
}
