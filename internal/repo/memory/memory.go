package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/hamed0406/servermon/internal/domain"
	"github.com/hamed0406/servermon/internal/repo"
)

var _ repo.EndpointStore = (*Store)(nil)

// Store keeps endpoints in memory behind a single lock, so a status commit
// is never observed half-applied.
type Store struct {
	mu    sync.RWMutex
	order []domain.EndpointID
	byID  map[domain.EndpointID]*domain.Endpoint
}

func New() *Store {
	return &Store{
		byID: make(map[domain.EndpointID]*domain.Endpoint),
	}
}

func (m *Store) List(ctx context.Context) ([]domain.Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Endpoint, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id].Clone())
	}
	return out, nil
}

func (m *Store) Get(ctx context.Context, id domain.EndpointID) (domain.Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byID[id]
	if !ok {
		return domain.Endpoint{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return e.Clone(), nil
}

func (m *Store) Add(ctx context.Context, e *domain.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = domain.NewEndpointID()
	}
	if _, dup := m.byID[e.ID]; dup {
		return fmt.Errorf("endpoint %s already exists", e.ID)
	}
	e.Ports = domain.NormalizePorts(e.Ports)
	e.Status = e.Status.Restrict(e.Ports)

	stored := e.Clone()
	m.byID[e.ID] = &stored
	m.order = append(m.order, e.ID)
	return nil
}

// Update keeps the last status when only name or ports change (open ports
// are trimmed to the new port set). A new address resets the status.
func (m *Store) Update(ctx context.Context, id domain.EndpointID, name, address string, ports []uint16) (domain.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return domain.Endpoint{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	e.Name = name
	e.Ports = domain.NormalizePorts(ports)
	if e.Address != address {
		e.Address = address
		e.Status = domain.Status{OpenPorts: []uint16{}}
	} else {
		e.Status = e.Status.Restrict(e.Ports)
	}
	return e.Clone(), nil
}

func (m *Store) Remove(ctx context.Context, id domain.EndpointID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	delete(m.byID, id)
	for i, cur := range m.order {
		if cur == id {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Store) Replace(ctx context.Context, endpoints []domain.Endpoint) error {
	order := make([]domain.EndpointID, 0, len(endpoints))
	byID := make(map[domain.EndpointID]*domain.Endpoint, len(endpoints))
	for _, e := range endpoints {
		c := e.Clone()
		if c.ID == "" {
			c.ID = domain.NewEndpointID()
		}
		if _, dup := byID[c.ID]; dup {
			return fmt.Errorf("endpoint %s listed twice", c.ID)
		}
		c.Ports = domain.NormalizePorts(c.Ports)
		c.Status = c.Status.Restrict(c.Ports)
		byID[c.ID] = &c
		order = append(order, c.ID)
	}

	m.mu.Lock()
	m.order = order
	m.byID = byID
	m.mu.Unlock()
	return nil
}

func (m *Store) ApplyStatus(ctx context.Context, id domain.EndpointID, probedAddress string, st domain.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok || e.Address != probedAddress {
		return false, nil
	}
	e.Status = st.Restrict(e.Ports)
	return true, nil
}
