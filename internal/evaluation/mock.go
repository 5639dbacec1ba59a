package evaluation

import (
	"context"
	"sync"
)

// MockScorer is a test double for the pronunciation service.
type MockScorer struct {
	mu          sync.Mutex
	Result      SpeechResult
	Err         error
	Calls       int
	LastRequest *SpeechRequest // captures the last request for inspection
}

// NewMockScorer creates a MockScorer that returns the given score.
func NewMockScorer(score int, spoken string) *MockScorer {
	return &MockScorer{Result: SpeechResult{Score: score, SpokenText: spoken}}
}

func (m *MockScorer) Score(_ context.Context, req SpeechRequest) (SpeechResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.LastRequest = &req
	if m.Err != nil {
		return SpeechResult{}, m.Err
	}
	return m.Result, nil
}

// Set replaces the canned result and error.
func (m *MockScorer) Set(res SpeechResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Result = res
	m.Err = err
}
