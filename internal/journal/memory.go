package journal

import (
	"context"
	"sync"

	"formrelay/internal/models"
)

// Memory is a bounded in-process journal. The oldest record is dropped once
// the capacity is reached. Records are lost on restart.
type Memory struct {
	mu      sync.RWMutex
	records []models.Delivery
	next    int
	full    bool
	closed  bool
}

// NewMemory creates a journal holding at most capacity records.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMaxEntries
	}
	return &Memory{records: make([]models.Delivery, capacity)}
}

// Record implements Journal.
func (m *Memory) Record(_ context.Context, d models.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.records[m.next] = d
	m.next = (m.next + 1) % len(m.records)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// Recent implements Journal.
func (m *Memory) Recent(_ context.Context, limit int) ([]models.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	size := m.next
	if m.full {
		size = len(m.records)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	result := make([]models.Delivery, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + len(m.records)) % len(m.records)
		result = append(result, m.records[idx])
	}
	return result, nil
}

// Ping implements Journal.
func (m *Memory) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Journal.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
