package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-lesson/internal/accessibility"
	"github.com/p-n-ai/pai-lesson/internal/lesson"
)

// ErrSessionNotFound means no live session has the given id.
var ErrSessionNotFound = errors.New("session not found")

// ManagerConfig holds dependencies for the session registry.
type ManagerConfig struct {
	Source  lesson.Source
	Session Config
	// NewMicrophone builds the capture device of each session (default: a
	// ClientMicrophone per session).
	NewMicrophone func() Microphone
}

// StartRequest begins a lesson attempt.
type StartRequest struct {
	LessonID    string                     `json:"lessonId" validate:"required"`
	LearnerID   string                     `json:"learnerId"`
	Preferences *accessibility.Preferences `json:"preferences"`
}

type entry struct {
	session *Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager keeps the live sessions of this process. Sessions share no state.
type Manager struct {
	source        lesson.Source
	cfg           Config
	newMicrophone func() Microphone

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewManager creates a session registry.
func NewManager(cfg ManagerConfig) *Manager {
	newMic := cfg.NewMicrophone
	if newMic == nil {
		newMic = func() Microphone { return NewClientMicrophone() }
	}
	return &Manager{
		source:        cfg.Source,
		cfg:           cfg.Session,
		newMicrophone: newMic,
		sessions:      make(map[string]*entry),
	}
}

// Start loads the lesson, registers the session and starts its timer. A load
// failure is returned and nothing is registered.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Session, error) {
	if m.source == nil {
		return nil, fmt.Errorf("start session: no lesson source configured")
	}

	cfg := m.cfg
	cfg.Microphone = m.newMicrophone()
	s := New(uuid.NewString(), req.LearnerID, req.Preferences, cfg)
	if err := s.Load(ctx, m.source, req.LessonID); err != nil {
		s.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e := &entry{session: s, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(e.done)
		s.Run(runCtx)
	}()

	m.mu.Lock()
	m.sessions[s.ID()] = e
	m.mu.Unlock()

	slog.Info("session registered", "session_id", s.ID(), "lesson_id", req.LessonID, "learner_id", req.LearnerID)
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e.session, nil
}

// End stops and discards a session. Pending autosaves settle first.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	e.cancel()
	<-e.done
	e.session.Close()
	slog.Info("session ended", "session_id", id, "state", string(e.session.State()))
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown ends every live session.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.End(id)
	}
}
