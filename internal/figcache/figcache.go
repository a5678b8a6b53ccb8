// Package figcache stores figure descriptions per document so repeated runs
// skip the vision calls.
package figcache

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/dgallion1/groundtruth/internal/document"
)

// ErrInvalidDocID is returned for empty or path-like document ids.
var ErrInvalidDocID = errors.New("invalid document id")

// Store is a figure-description cache keyed by document id.
type Store interface {
	// Get returns the cached descriptions and whether the key was present.
	Get(ctx context.Context, docID string) ([]document.FigureDescription, bool, error)
	Put(ctx context.Context, docID string, descs []document.FigureDescription) error
}

func validateDocID(docID string) error {
	if docID == "" || strings.ContainsAny(docID, "/\\\x00") {
		return ErrInvalidDocID
	}
	return nil
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]document.FigureDescription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]document.FigureDescription)}
}

func (s *MemoryStore) Get(_ context.Context, docID string) ([]document.FigureDescription, bool, error) {
	if err := validateDocID(docID); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	descs, ok := s.entries[docID]
	if !ok {
		return nil, false, nil
	}
	return clone(descs), true, nil
}

func (s *MemoryStore) Put(_ context.Context, docID string, descs []document.FigureDescription) error {
	if err := validateDocID(docID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[docID] = clone(descs)
	return nil
}

// Len reports the number of cached documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func clone(descs []document.FigureDescription) []document.FigureDescription {
	out := make([]document.FigureDescription, len(descs))
	copy(out, descs)
	return out
}
