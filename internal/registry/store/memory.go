// Package store provides the persistence implementations behind the
// registry's Store interface.
package store

import (
	"context"
	"sync"
	"time"

	"meldid/internal/registry"
	"meldid/pkg/platform/sentinel"
)

// Memory keeps entries in a map guarded by a single RWMutex. Create and
// Touch take the write lock, which gives per-chipID atomicity for free:
// concurrent Create calls for the same chipID serialize, and exactly one
// wins. Lookups copy the entry out under the read lock so callers never see
// a torn struct.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]registry.Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]registry.Entry)}
}

func (s *Memory) Create(_ context.Context, entry registry.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.ChipID]; ok {
		return sentinel.ErrConflict
	}
	entry.PublicKey = append(registry.PublicKeyBytes{}, entry.PublicKey...)
	s.entries[entry.ChipID] = entry
	return nil
}

func (s *Memory) Get(_ context.Context, chipID string) (registry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[chipID]
	if !ok {
		return registry.Entry{}, sentinel.ErrNotFound
	}
	return entry, nil
}

func (s *Memory) Touch(_ context.Context, chipID string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[chipID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if seenAt.After(entry.LastSeen) {
		entry.LastSeen = seenAt
		s.entries[chipID] = entry
	}
	return nil
}

func (s *Memory) BatchGet(_ context.Context, chipIDs []string) ([]registry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]registry.Entry, 0, len(chipIDs))
	for _, id := range chipIDs {
		if entry, ok := s.entries[id]; ok {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *Memory) List(_ context.Context) ([]registry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]registry.Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry)
	}
	return out, nil
}

func (s *Memory) Health(_ context.Context) error { return nil }
