package lesson

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DirSource loads lesson documents authored as YAML or JSON files from a directory tree.
type DirSource struct {
	rootDir string
	lessons map[string]*Lesson
	mu      sync.RWMutex
}

// NewDirSource creates a source and loads every lesson under rootDir.
func NewDirSource(rootDir string) (*DirSource, error) {
	s := &DirSource{
		rootDir: rootDir,
		lessons: make(map[string]*Lesson),
	}

	if err := s.loadAll(); err != nil {
		return nil, fmt.Errorf("loading lessons: %w", err)
	}

	slog.Info("lessons loaded", "dir", rootDir, "lessons", len(s.lessons))
	return s, nil
}

func (s *DirSource) Lesson(_ context.Context, id string) (*Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lessons[id]
	if !ok {
		return nil, fmt.Errorf("lesson %s: %w", id, ErrNotFound)
	}
	return l, nil
}

// IDs returns the ids of all loaded lessons, sorted.
func (s *DirSource) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.lessons))
	for id := range s.lessons {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *DirSource) loadAll() error {
	if _, err := os.Stat(s.rootDir); err != nil {
		return err
	}
	return filepath.Walk(s.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml", ".json":
			return s.loadLesson(path)
		}
		return nil
	})
}

func (s *DirSource) loadLesson(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// YAML is a superset of JSON, so both go through the same decoder and are
	// re-encoded as JSON for schema validation.
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping invalid lesson file", "path", path, "error", err)
		return nil
	}
	if doc == nil || doc["id"] == nil {
		return nil // not a lesson file
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		slog.Warn("skipping lesson file", "path", path, "error", err)
		return nil
	}
	l, err := Decode(raw)
	if err != nil {
		slog.Warn("skipping malformed lesson", "path", path, "error", err)
		return nil
	}

	s.mu.Lock()
	s.lessons[l.ID] = l
	s.mu.Unlock()

	return nil
}
