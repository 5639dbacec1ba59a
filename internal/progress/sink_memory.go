package progress

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrInjected is returned by MemorySink when a failure has been scheduled.
var ErrInjected = errors.New("injected sink failure")

// CallKind tells the two sink operations apart in a MemorySink log.
type CallKind string

const (
	CallProgress   CallKind = "progress"
	CallCompletion CallKind = "completion"
)

// Call is one recorded sink invocation.
type Call struct {
	Kind       CallKind
	Progress   ProgressRecord
	Completion CompletionRecord
	Err        error
}

// MemorySink records calls in order and can be told to fail. For tests and
// local development.
type MemorySink struct {
	mu             sync.Mutex
	calls          []Call
	failProgress   int
	failCompletion int
	achievements   []string
	latest         map[string]ProgressRecord
}

func NewMemorySink() *MemorySink {
	return &MemorySink{latest: make(map[string]ProgressRecord)}
}

// FailProgress makes the next n SaveProgress calls fail.
func (m *MemorySink) FailProgress(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failProgress = n
}

// FailCompletion makes the next n SubmitCompletion calls fail.
func (m *MemorySink) FailCompletion(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCompletion = n
}

// AwardOnCompletion sets badge names returned with the next successful completion.
func (m *MemorySink) AwardOnCompletion(badges ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.achievements = badges
}

func (m *MemorySink) SaveProgress(_ context.Context, rec ProgressRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.Answers = copyAnswers(rec.Answers)
	call := Call{Kind: CallProgress, Progress: rec}
	if m.failProgress > 0 {
		m.failProgress--
		call.Err = ErrInjected
		m.calls = append(m.calls, call)
		return ErrInjected
	}
	m.calls = append(m.calls, call)
	m.latest[rec.SessionID] = rec
	return nil
}

func (m *MemorySink) SubmitCompletion(_ context.Context, rec CompletionRecord) (CompletionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := Call{Kind: CallCompletion, Completion: rec}
	if m.failCompletion > 0 {
		m.failCompletion--
		call.Err = ErrInjected
		m.calls = append(m.calls, call)
		return CompletionResult{}, ErrInjected
	}
	m.calls = append(m.calls, call)

	res := CompletionResult{Success: true}
	for _, b := range m.achievements {
		raw, _ := json.Marshal(map[string]string{"badgeName": b})
		res.NewAchievements = append(res.NewAchievements, raw)
	}
	m.achievements = nil
	return res, nil
}

// Calls returns every recorded call in order.
func (m *MemorySink) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call{}, m.calls...)
}

// Latest returns the last successfully saved progress for a session.
func (m *MemorySink) Latest(sessionID string) (ProgressRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.latest[sessionID]
	return rec, ok
}

// Completions returns the successful completion records.
func (m *MemorySink) Completions() []CompletionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CompletionRecord
	for _, c := range m.calls {
		if c.Kind == CallCompletion && c.Err == nil {
			out = append(out, c.Completion)
		}
	}
	return out
}
