package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrMediumFull is returned by a Medium that refuses a value above its hard
// limit. Nothing is written in that case.
var ErrMediumFull = errors.New("storage: medium capacity exceeded")

// Medium is a string-keyed slot holding the serialized local document.
type Medium interface {
	Load(ctx context.Context, key string) (string, bool, error)
	Store(ctx context.Context, key, value string) error
	Close() error
}

// EstimateSize approximates the bytes a value occupies in a medium that
// stores 16-bit code units: UTF-16 length x 2.
func EstimateSize(s string) int64 {
	var units int64
	for _, r := range s {
		units++
		if r >= 0x10000 {
			units++
		}
	}
	return units * 2
}

func checkLimit(limit int64, value string) error {
	if limit <= 0 {
		return nil
	}
	if size := EstimateSize(value); size > limit {
		return fmt.Errorf("%w: %d bytes > %d", ErrMediumFull, size, limit)
	}
	return nil
}

// MemoryMedium keeps the document in process memory. Used by tests and by
// the dmctl dry-run mode.
type MemoryMedium struct {
	mu    sync.Mutex
	limit int64
	slots map[string]string
}

func NewMemoryMedium(limit int64) *MemoryMedium {
	return &MemoryMedium{limit: limit, slots: make(map[string]string)}
}

func (m *MemoryMedium) Load(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.slots[key]
	return v, ok, nil
}

func (m *MemoryMedium) Store(_ context.Context, key, value string) error {
	if err := checkLimit(m.limit, value); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[key] = value
	return nil
}

func (m *MemoryMedium) Close() error { return nil }
