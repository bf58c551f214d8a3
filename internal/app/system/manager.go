package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// NoopService is a placeholder for components with no background work that
// should still appear in the lifecycle listing.
type NoopService struct {
	ServiceName string
}

func (n NoopService) Name() string { return n.ServiceName }

func (n NoopService) Start(ctx context.Context) error { return nil }

func (n NoopService) Stop(ctx context.Context) error { return nil }

// Manager starts services in registration order and stops them in reverse.
type Manager struct {
	mu       sync.Mutex
	services []Service
	names    map[string]struct{}
	started  []Service
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{names: make(map[string]struct{})}
}

// Register adds a service. Names must be unique.
func (m *Manager) Register(svc Service) error {
	if svc == nil {
		return errors.New("system: nil service")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	name := svc.Name()
	if name == "" {
		return errors.New("system: service name required")
	}
	if _, exists := m.names[name]; exists {
		return fmt.Errorf("system: service %q already registered", name)
	}
	m.names[name] = struct{}{}
	m.services = append(m.services, svc)
	return nil
}

// Names lists registered services in start order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.services))
	for i, svc := range m.services {
		out[i] = svc.Name()
	}
	return out
}

// Descriptors returns one descriptor per registered service. Services that
// do not describe themselves report their name only.
func (m *Manager) Descriptors() []Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Descriptor, len(m.services))
	for i, svc := range m.services {
		if p, ok := svc.(DescriptorProvider); ok {
			out[i] = p.Descriptor()
			continue
		}
		out[i] = Descriptor{Name: svc.Name()}
	}
	return out
}

// Start starts every service. If one fails, those already started are
// stopped again before the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, svc := range m.services {
		if err := svc.Start(ctx); err != nil {
			m.stopLocked(ctx)
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		m.started = append(m.started, svc)
	}
	return nil
}

// Stop stops started services in reverse order and joins their errors.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx)
}

func (m *Manager) stopLocked(ctx context.Context) error {
	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		svc := m.started[i]
		if err := svc.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", svc.Name(), err))
		}
	}
	m.started = nil
	return errors.Join(errs...)
}
