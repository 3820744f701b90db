package agent

import (
	"strings"
	"sync"
	"time"

	providertypes "botkit/pkg/provider/types"
)

const defaultMemoryLimit = 20

type MemoryEntry struct {
	Role    providertypes.Role
	Content string
	At      time.Time
}

// Memory keeps the most recent entries of one conversation.
type Memory struct {
	limit int

	mu      sync.RWMutex
	entries []MemoryEntry
}

// NewMemory returns a memory holding at most limit entries. A non-positive
// limit selects the default.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = defaultMemoryLimit
	}

	return &Memory{limit: limit}
}

func (m *Memory) Append(role providertypes.Role, content string) {
	content = strings.TrimSpace(content)
	if role == "" || content == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, MemoryEntry{
		Role:    role,
		Content: content,
		At:      time.Now().UTC(),
	})
	if overflow := len(m.entries) - m.limit; overflow > 0 {
		m.entries = append([]MemoryEntry(nil), m.entries[overflow:]...)
	}
}

func (m *Memory) List() []MemoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 {
		return nil
	}

	out := make([]MemoryEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// History converts the entries into responder messages.
func (m *Memory) History() []providertypes.Message {
	entries := m.List()
	if len(entries) == 0 {
		return nil
	}

	history := make([]providertypes.Message, 0, len(entries))
	for _, entry := range entries {
		history = append(history, providertypes.Message{Role: entry.Role, Text: entry.Content})
	}
	return history
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = nil
}
