package memory

import "sync"

// Memory is a bounded stream of entries; the oldest entry is dropped once
// capacity is exceeded
type Memory struct {
	stream   []string
	capacity int
	mu       sync.RWMutex
}

func NewMemory(capacity int) *Memory {
	if capacity < 0 {
		capacity = 0
	}
	return &Memory{
		stream:   make([]string, 0, capacity),
		capacity: capacity,
	}
}

// GetAllMessages returns a copy of all entries, oldest first
func (m *Memory) GetAllMessages() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to prevent external modifications
	messages := make([]string, len(m.stream))
	copy(messages, m.stream)
	return messages
}

// Recent returns up to n of the newest entries, oldest first
func (m *Memory) Recent(n int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n > len(m.stream) {
		n = len(m.stream)
	}
	if n <= 0 {
		return nil
	}
	out := make([]string, n)
	copy(out, m.stream[len(m.stream)-n:])
	return out
}

func (m *Memory) Store(data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.capacity == 0 {
		return nil
	}
	m.stream = append(m.stream, data)
	if len(m.stream) > m.capacity {
		m.stream = m.stream[len(m.stream)-m.capacity:]
	}
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stream)
}

// Clear drops every entry
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stream = m.stream[:0]
}
