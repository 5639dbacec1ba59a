package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrPermissionDenied means the learner's browser refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrNotRecording means there is no capture in progress.
	ErrNotRecording = errors.New("not recording")
	// ErrRecordingTooLarge means a capture exceeded the buffer limit.
	ErrRecordingTooLarge = errors.New("recording too large")
)

// DefaultMaxRecordingBytes bounds one capture (about 5 minutes of 16 kHz mono PCM).
const DefaultMaxRecordingBytes = 10 << 20

// CaptureDevice is an acquired microphone. Stop releases every underlying
// track and returns the captured audio; it is safe to call more than once.
type CaptureDevice interface {
	Write(frame []byte) (int, error)
	Stop() ([]byte, error)
}

// Microphone hands out capture devices.
type Microphone interface {
	Open(ctx context.Context) (CaptureDevice, error)
}

// PermissionReporter is implemented by microphones whose permission is
// decided on the client.
type PermissionReporter interface {
	SetPermission(granted bool)
}

// ClientMicrophone is fed by audio frames streamed from the learner's browser.
// Its permission mirrors what the browser last reported.
type ClientMicrophone struct {
	mu       sync.Mutex
	denied   bool
	maxBytes int
}

func NewClientMicrophone() *ClientMicrophone {
	return &ClientMicrophone{maxBytes: DefaultMaxRecordingBytes}
}

func (m *ClientMicrophone) SetPermission(granted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denied = !granted
}

func (m *ClientMicrophone) Open(context.Context) (CaptureDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.denied {
		return nil, ErrPermissionDenied
	}
	return &bufferDevice{max: m.maxBytes}, nil
}

type bufferDevice struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	max     int
	stopped bool
}

func (d *bufferDevice) Write(frame []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return 0, ErrNotRecording
	}
	if d.max > 0 && d.buf.Len()+len(frame) > d.max {
		return 0, ErrRecordingTooLarge
	}
	return d.buf.Write(frame)
}

func (d *bufferDevice) Stop() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	out := bytes.Clone(d.buf.Bytes())
	d.buf.Reset()
	return out, nil
}

// Recorder owns at most one capture device at a time.
type Recorder struct {
	mic    Microphone
	mu     sync.Mutex
	dev    CaptureDevice
	stepID string
}

func NewRecorder(mic Microphone) *Recorder {
	return &Recorder{mic: mic}
}

// Start acquires the microphone for stepID, releasing any earlier capture.
func (r *Recorder) Start(ctx context.Context, stepID string) error {
	r.Release()

	dev, err := r.mic.Open(ctx)
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.dev = dev
	r.stepID = stepID
	return nil
}

// Write appends an audio frame to the active capture.
func (r *Recorder) Write(frame []byte) error {
	r.mu.Lock()
	dev := r.dev
	r.mu.Unlock()
	if dev == nil {
		return ErrNotRecording
	}
	_, err := dev.Write(frame)
	return err
}

// Stop ends the capture, releases the device and returns the audio.
func (r *Recorder) Stop() (stepID string, audio []byte, err error) {
	r.mu.Lock()
	dev, stepID := r.dev, r.stepID
	r.dev, r.stepID = nil, ""
	r.mu.Unlock()

	if dev == nil {
		return "", nil, ErrNotRecording
	}
	audio, err = dev.Stop()
	if err != nil {
		return stepID, nil, fmt.Errorf("stop capture: %w", err)
	}
	return stepID, audio, nil
}

// Release drops any active capture without keeping its audio.
func (r *Recorder) Release() bool {
	r.mu.Lock()
	dev := r.dev
	r.dev, r.stepID = nil, ""
	r.mu.Unlock()

	if dev == nil {
		return false
	}
	_, _ = dev.Stop()
	return true
}

// Active reports the step being recorded, if any.
func (r *Recorder) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stepID, r.dev != nil
}

// SetPermission forwards a client permission report to the microphone.
func (r *Recorder) SetPermission(granted bool) {
	if pr, ok := r.mic.(PermissionReporter); ok {
		pr.SetPermission(granted)
	}
}
