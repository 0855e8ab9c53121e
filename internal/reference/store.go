// Package reference serves the guideline documents the reasoning stage
// appends to its instruction.
package reference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned when a guideline does not exist in the source.
var ErrNotFound = errors.New("reference material not found")

// Source reads raw guideline documents by name.
type Source interface {
	Read(ctx context.Context, name string) ([]byte, error)
	// List returns every guideline name the source knows about.
	List(ctx context.Context) ([]string, error)
}

// Store is a read-through cache over a Source. It is safe for concurrent
// use; entries are populated on first load and dropped by Reload.
type Store struct {
	src    Source
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]string
}

func NewStore(src Source, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		src:    src,
		logger: logger,
		cache:  make(map[string]string),
	}
}

// Load returns the named guideline text.
func (s *Store) Load(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	if text, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return text, nil
	}
	s.mu.RUnlock()

	// No lock held during I/O.
	raw, err := s.src.Read(ctx, name)
	if err != nil {
		return "", fmt.Errorf("load reference %q: %w", name, err)
	}
	text := strings.TrimSpace(string(raw))

	s.mu.Lock()
	if cached, ok := s.cache[name]; ok {
		text = cached
	} else {
		s.cache[name] = text
	}
	s.mu.Unlock()

	s.logger.Debug("reference.loaded", "name", name, "chars", len(text))
	return text, nil
}

// LoadAll loads every guideline the source lists, in name order. Names that
// disappear between listing and reading are skipped.
func (s *Store) LoadAll(ctx context.Context) ([]Document, error) {
	names, err := s.src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	sort.Strings(names)

	docs := make([]Document, 0, len(names))
	for _, name := range names {
		text, err := s.Load(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{Name: name, Text: text})
	}
	return docs, nil
}

// Reload clears the cache so the next loads go back to the source.
func (s *Store) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
	s.logger.Info("reference.reloaded")
}

// Document is one named guideline.
type Document struct {
	Name string
	Text string
}
