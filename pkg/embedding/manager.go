package embedding

import (
	"fmt"
	"sync"

	"github.com/halcyonlabs/vecstore/pkg/verrors"
)

// Manager is the embedding provider registry: a name-to-
// Provider map with a designated default. Default selection is a
// registration-order property, not a runtime flag — whichever provider
// is registered first becomes the default.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
	defaultName string
}

// NewManager builds an empty registry.
func NewManager() *Manager {
	return &Manager{providers: make(map[string]Provider)}
}

// Register adds a provider under its own Name(). The first provider ever
// registered becomes the default; callers that want BM25 as default must
// register it first.
func (m *Manager) Register(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := p.Name()
	if _, exists := m.providers[name]; !exists {
		m.order = append(m.order, name)
	}
	m.providers[name] = p
	if m.defaultName == "" {
		m.defaultName = name
	}
}

// Get returns the named provider.
func (m *Manager) Get(name string) (Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[name]
	if !ok {
		return nil, verrors.NotFound("embedding.get", fmt.Errorf("provider %q not registered", name))
	}
	return p, nil
}

// Default returns the registration-order default provider.
func (m *Manager) Default() (Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.defaultName == "" {
		return nil, verrors.State("embedding.default", fmt.Errorf("no providers registered"))
	}
	return m.providers[m.defaultName], nil
}

// DefaultName reports the name of the current default provider.
func (m *Manager) DefaultName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultName
}

// Names returns registered provider names in registration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// NewDefaultManager builds a Manager with the standard provider set,
// registering BM25 first so it claims the default slot, followed by
// TF-IDF, BagOfWords and CharNGram.
func NewDefaultManager() *Manager {
	m := NewManager()
	m.Register(NewBM25(DefaultDimension))
	m.Register(NewTFIDF(DefaultDimension))
	m.Register(NewBagOfWords(DefaultDimension))
	m.Register(NewCharNGram(DefaultDimension, 3))
	return m
}
