package buffer

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jittakal/membuffers/internal/allocator"
	"github.com/jittakal/membuffers/pkg/buffer"
)

var _ buffer.Manager[byte] = (*Manager[byte])(nil)

// Manager manages named chunky buffers sharing one allocator.
// It creates buffers on demand and uses double-checked locking for
// efficient concurrent access.
type Manager[T buffer.Element] struct {
	allocator *allocator.Allocator[T]
	template  Options
	logger    *slog.Logger
	buffers   map[string]*Chunky[T]
	mu        sync.RWMutex
}

// NewManager creates a new buffer manager. Every buffer it creates uses the
// segment bounds and metrics of template, labelled with its own name.
func NewManager[T buffer.Element](alloc *allocator.Allocator[T], template Options, logger *slog.Logger) *Manager[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager[T]{
		allocator: alloc,
		template:  template,
		logger:    logger,
		buffers:   make(map[string]*Chunky[T]),
	}
}

// GetOrCreate returns the buffer registered under name, creating it if needed.
func (m *Manager[T]) GetOrCreate(name string) (buffer.Chunky[T], error) {
	m.mu.RLock()
	buf, exists := m.buffers[name]
	m.mu.RUnlock()

	if exists {
		return buf, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if buf, exists := m.buffers[name]; exists {
		return buf, nil
	}

	opts := m.template
	opts.Name = name
	buf, err := NewChunky(m.allocator, opts)
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", name, err)
	}
	m.buffers[name] = buf

	m.logger.Debug("buffer created",
		"buffer", name,
		"min_segments", opts.MinSegments,
		"max_segments", opts.MaxSegments,
	)
	return buf, nil
}

// Get returns the buffer registered under name.
func (m *Manager[T]) Get(name string) (buffer.Chunky[T], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	buf, ok := m.buffers[name]
	if !ok {
		return nil, false
	}
	return buf, true
}

// Names returns the registered buffer names in sorted order.
func (m *Manager[T]) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.buffers))
	for name := range m.buffers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered buffers.
func (m *Manager[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buffers)
}

// Remove closes and unregisters the buffer under name. Removing an unknown
// name is a no-op.
func (m *Manager[T]) Remove(name string) error {
	m.mu.Lock()
	buf, ok := m.buffers[name]
	delete(m.buffers, name)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return buf.Close()
}

// CloseAll closes and unregisters every buffer, returning the joined
// errors of buffers that were already closed by their users.
func (m *Manager[T]) CloseAll() error {
	m.mu.Lock()
	buffers := m.buffers
	m.buffers = make(map[string]*Chunky[T])
	m.mu.Unlock()

	var errs []error
	for name, buf := range buffers {
		if err := buf.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close buffer %q: %w", name, err))
		}
	}
	m.logger.Info("buffers closed", "count", len(buffers))
	return stderrors.Join(errs...)
}
