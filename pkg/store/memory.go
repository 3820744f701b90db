package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"botkit/pkg/schema"
)

// Memory is a process-local Store.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Save(_ context.Context, reference schema.ConversationReference) error {
	if err := validateReference(reference); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[reference.Key()] = Record{Reference: reference, UpdatedAt: time.Now().UTC()}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[strings.TrimSpace(key)]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return record, nil
}

// List returns records ordered by key.
func (m *Memory) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.records))
	for _, record := range m.records {
		out = append(out, record)
	}
	slices.SortFunc(out, func(a, b Record) int {
		return strings.Compare(a.Key(), b.Key())
	})

	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
