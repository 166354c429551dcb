package calstore

import (
	"context"
	"errors"
	"sync"

	"fxcalsync/internal/models"
)

var errNotFound = errors.New("entry not found")

// Memory is an in-process Store keyed by draft id. It behaves like the real
// backends for conflicts and is used to exercise sync logic without a network.
type Memory struct {
	mu      sync.Mutex
	entries map[string]models.Draft
	inserts int
	updates int

	// FailInsert, when set, is consulted before every insert; a non-nil result is returned as is.
	FailInsert func(draft models.Draft) error
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]models.Draft)}
}

func (m *Memory) Insert(_ context.Context, draft models.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailInsert != nil {
		if err := m.FailInsert(draft); err != nil {
			return err
		}
	}
	if _, ok := m.entries[draft.ID]; ok {
		return Wrap(KindConflict, "insert", errors.New("the requested identifier already exists"))
	}
	m.entries[draft.ID] = draft
	m.inserts++
	return nil
}

func (m *Memory) Update(_ context.Context, id string, draft models.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return Wrap(KindPermanent, "update", errNotFound)
	}
	m.entries[id] = draft
	m.updates++
	return nil
}

// Entries returns a copy of the stored drafts.
func (m *Memory) Entries() map[string]models.Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.Draft, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// Calls returns how many inserts and updates succeeded.
func (m *Memory) Calls() (inserts, updates int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserts, m.updates
}
