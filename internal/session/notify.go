package session

import (
	"context"
)

// Update kinds pushed to connected clients.
const (
	UpdateTick      = "tick"
	UpdatePlan      = "plan"
	UpdateState     = "state"
	UpdateMediaStop = "media.stop"
	UpdateMessage   = "message"
)

// Update is a server-initiated message for one session.
type Update struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Data      any    `json:"data,omitempty"`
}

// Notifier delivers updates to whoever is watching a session.
type Notifier interface {
	Notify(u Update)
}

// MediaController owns the playback device of a session's media steps.
type MediaController interface {
	Stop(ctx context.Context, sessionID, stepID string) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(Update) {}

type nopMedia struct{}

func (nopMedia) Stop(context.Context, string, string) error { return nil }

// Media event kinds reported by the client's player.
const (
	MediaStarted       = "started"
	MediaPaused        = "paused"
	MediaEnded         = "ended"
	MediaError         = "error"
	MediaProgress      = "progress"
	MediaSpeed         = "speed"
	MediaSeek          = "seek"
	MediaMute          = "mute"
	MediaTranscript    = "transcript"
	MediaMicPermission = "mic-permission"
)

// MediaEvent is one callback from the client's media or capture devices.
type MediaEvent struct {
	Kind     string  `json:"kind"`
	StepID   string  `json:"stepId"`
	Position float64 `json:"position,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Delta    float64 `json:"delta,omitempty"`
	Granted  bool    `json:"granted,omitempty"`
	Message  string  `json:"message,omitempty"`
}
