package connectiondao

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process registry used in console mode and tests. Each
// operation is atomic; the lock is never held beyond the map access.
type Memory struct {
	mu    sync.Mutex
	conns map[string]Connection
}

func NewMemory(conns ...Connection) *Memory {
	m := &Memory{conns: make(map[string]Connection, len(conns))}
	for _, conn := range conns {
		m.conns[conn.ConnectionID] = conn
	}
	return m
}

func (m *Memory) Put(_ context.Context, conn Connection) error {
	if conn.ConnectionID == "" {
		return fmt.Errorf("failed to put connection: empty connection id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[conn.ConnectionID] = conn
	return nil
}

func (m *Memory) Get(_ context.Context, connectionID string) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[connectionID]
	if !ok {
		return nil, fmt.Errorf("connection %v not found", connectionID)
	}
	return &conn, nil
}

func (m *Memory) Delete(_ context.Context, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, connectionID)
	return nil
}

func (m *Memory) ScanAll(_ context.Context) ([]Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conns := make([]Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	return conns, nil
}

// IDs returns the IDs currently held, in no particular order.
func (m *Memory) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	return ids
}
