package lesson

import (
	"context"
	"fmt"
	"sync"
)

// Source fetches lessons by id. Implementations return ErrNotFound for unknown
// ids and ErrMalformed for documents that cannot be delivered.
type Source interface {
	Lesson(ctx context.Context, id string) (*Lesson, error)
}

// MemorySource serves lessons from memory. Useful for tests and local development.
type MemorySource struct {
	mu      sync.RWMutex
	lessons map[string]*Lesson
}

// NewMemorySource creates a source preloaded with the given lessons.
func NewMemorySource(lessons ...*Lesson) *MemorySource {
	s := &MemorySource{lessons: make(map[string]*Lesson)}
	for _, l := range lessons {
		s.Put(l)
	}
	return s
}

// Put adds or replaces a lesson.
func (s *MemorySource) Put(l *Lesson) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lessons[l.ID] = l
}

func (s *MemorySource) Lesson(_ context.Context, id string) (*Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lessons[id]
	if !ok {
		return nil, fmt.Errorf("lesson %s: %w", id, ErrNotFound)
	}
	if len(l.Steps) == 0 {
		return nil, fmt.Errorf("lesson %s has no steps: %w", id, ErrMalformed)
	}
	return l, nil
}
