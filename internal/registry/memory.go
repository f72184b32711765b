package registry

import (
	"context"
	"sync"
)

// Memory is an in-process registry for tests and ephemeral deployments.
type Memory struct {
	mu      sync.RWMutex
	devices map[string]*memoryRecord
}

type memoryRecord struct {
	device Device
	state  State
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{devices: make(map[string]*memoryRecord)}
}

// Ensure creates the device when missing; existing state is preserved.
func (m *Memory) Ensure(_ context.Context, device Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[device.ID]; !ok {
		m.devices[device.ID] = &memoryRecord{device: device}
	}
	return nil
}

// Exists reports whether the device record is present.
func (m *Memory) Exists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.devices[id]
	return ok, nil
}

// Read returns the last published state of a device.
func (m *Memory) Read(_ context.Context, id string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.devices[id]
	if !ok {
		return State{}, ErrUnknownDevice
	}
	return rec.state, nil
}

// Update overwrites the published state of a device.
func (m *Memory) Update(_ context.Context, id string, numeric int, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.devices[id]
	if !ok {
		return ErrUnknownDevice
	}
	rec.state = State{Numeric: numeric, Text: text}
	return nil
}

// Close is a no-op for the in-memory backend.
func (m *Memory) Close() error { return nil }
