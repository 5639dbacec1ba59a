// Package accessibility resolves the presentation modes active for a lesson session.
package accessibility

import (
	"fmt"
	"sort"
	"strings"
)

// Mode is an accessibility adaptation that changes how lesson steps are presented.
type Mode string

const (
	ModeADHD     Mode = "ADHD"
	ModeDyslexia Mode = "DYSLEXIA"
	ModeAPD      Mode = "APD"
	ModeAutism   Mode = "AUTISM"
)

// AllModes lists every supported mode in notice priority order.
var AllModes = []Mode{ModeADHD, ModeDyslexia, ModeAutism, ModeAPD}

// ParseMode converts a lesson tag into a Mode. Matching is case-insensitive.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeADHD:
		return ModeADHD, nil
	case ModeDyslexia:
		return ModeDyslexia, nil
	case ModeAPD:
		return ModeAPD, nil
	case ModeAutism:
		return ModeAutism, nil
	default:
		return "", fmt.Errorf("unknown accessibility mode %q", s)
	}
}

// Preferences are the learner's stored accessibility settings. Read-only for this service.
type Preferences struct {
	FontFamily        string  `json:"fontFamily"`
	FontSize          int     `json:"fontSize"`
	LineSpacing       float64 `json:"lineSpacing"`
	LetterSpacing     float64 `json:"letterSpacing"`
	ADHDMode          bool    `json:"adhdMode"`
	DyslexiaMode      bool    `json:"dyslexiaMode"`
	APDMode           bool    `json:"apdMode"`
	AutismMode        bool    `json:"autismMode"`
	SpeechRecLanguage string  `json:"speechRecLanguage"`
}

// DefaultPreferences mirrors the platform defaults used when a learner has none stored.
func DefaultPreferences() Preferences {
	return Preferences{
		FontFamily:    "system",
		FontSize:      18,
		LineSpacing:   1.5,
		LetterSpacing: 0,
	}
}

func (p *Preferences) declares(m Mode) bool {
	if p == nil {
		return false
	}
	switch m {
	case ModeADHD:
		return p.ADHDMode
	case ModeDyslexia:
		return p.DyslexiaMode || strings.EqualFold(p.FontFamily, "opendyslexic")
	case ModeAPD:
		return p.APDMode
	case ModeAutism:
		return p.AutismMode
	}
	return false
}

// EffectiveModes is the union of lesson-declared and learner-declared modes.
type EffectiveModes struct {
	active map[Mode]bool
	forced map[Mode]bool // active only because the lesson declares it
}

// Resolve merges lesson tags with learner preferences. A mode is active if either
// source declares it; nil preferences count as all-false.
func Resolve(lessonTags []Mode, prefs *Preferences) EffectiveModes {
	em := EffectiveModes{
		active: make(map[Mode]bool),
		forced: make(map[Mode]bool),
	}
	for _, m := range AllModes {
		if prefs.declares(m) {
			em.active[m] = true
		}
	}
	for _, tag := range lessonTags {
		if tag == "" {
			continue
		}
		if !em.active[tag] {
			em.forced[tag] = true
		}
		em.active[tag] = true
	}
	return em
}

// Has reports whether the mode is active.
func (em EffectiveModes) Has(m Mode) bool {
	return em.active[m]
}

// Forced reports whether the mode is active only because the lesson declares it.
func (em EffectiveModes) Forced(m Mode) bool {
	return em.forced[m]
}

// List returns the active modes in a stable order.
func (em EffectiveModes) List() []Mode {
	out := make([]Mode, 0, len(em.active))
	for m := range em.active {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Notice informs the learner that the platform adapted the lesson for them.
type Notice struct {
	Mode  Mode   `json:"mode"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

var notices = map[Mode]Notice{
	ModeADHD:     {Mode: ModeADHD, Title: "ADHD Focus Mode Active", Body: "We enabled short steps and focus timers for you."},
	ModeDyslexia: {Mode: ModeDyslexia, Title: "Dyslexia Support Active", Body: "Text is optimised for reading ease."},
	ModeAutism:   {Mode: ModeAutism, Title: "Structured Learning Active", Body: "Clear, predictable steps enabled."},
	ModeAPD:      {Mode: ModeAPD, Title: "Listening Support Active", Body: "Text steps include read-aloud support and full transcripts."},
}

// NoticeFor returns the single notice to surface for a session, if any mode was
// switched on by the lesson rather than by the learner.
func NoticeFor(em EffectiveModes) (Notice, bool) {
	for _, m := range AllModes {
		if em.Forced(m) {
			return notices[m], true
		}
	}
	return Notice{}, false
}
