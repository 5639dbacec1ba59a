package presentation

import "slices"

// PlaybackSpeeds are the selectable rates, cycled in order.
var PlaybackSpeeds = []float64{0.5, 0.75, 1.0, 1.25, 1.5, 2.0}

// SeekStep is the skip distance of the back/forward controls, in seconds.
const SeekStep = 5.0

// MediaState is the learner-facing state of an audio or video player.
type MediaState struct {
	Playing           bool    `json:"playing"`
	Ended             bool    `json:"ended"`
	Position          float64 `json:"position"`
	Duration          float64 `json:"duration"`
	Speed             float64 `json:"speed"`
	Muted             bool    `json:"muted"`
	TranscriptVisible bool    `json:"transcriptVisible"`
	Error             string  `json:"error,omitempty"`
}

// NewMediaState returns the initial player state. The transcript starts
// hidden when focus mode is on.
func NewMediaState(focusMode bool) MediaState {
	return MediaState{Speed: 1.0, TranscriptVisible: !focusMode}
}

// NextSpeed advances to the next playback rate, wrapping after the fastest.
func (m *MediaState) NextSpeed() float64 {
	i := slices.Index(PlaybackSpeeds, m.Speed)
	m.Speed = PlaybackSpeeds[(i+1)%len(PlaybackSpeeds)]
	return m.Speed
}

// Seek moves the playhead by delta seconds, clamped to the media bounds.
// An unknown duration only clamps at zero.
func (m *MediaState) Seek(delta float64) float64 {
	p := m.Position + delta
	if m.Duration > 0 && p > m.Duration {
		p = m.Duration
	}
	if p < 0 {
		p = 0
	}
	m.Position = p
	return p
}

// ToggleMute flips the mute flag.
func (m *MediaState) ToggleMute() bool {
	m.Muted = !m.Muted
	return m.Muted
}

// ToggleTranscript flips transcript visibility.
func (m *MediaState) ToggleTranscript() bool {
	m.TranscriptVisible = !m.TranscriptVisible
	return m.TranscriptVisible
}
