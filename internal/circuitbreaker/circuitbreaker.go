// Package circuitbreaker wraps sony/gobreaker with a name-keyed Manager so
// every external call site (search engine, scrape target, LLM tier) gets
// its own breaker without each collaborator wiring gobreaker directly.
package circuitbreaker

import (
	"sync"

	"github.com/sony/gobreaker"
)

// Manager lazily creates and caches one gobreaker.CircuitBreaker per name,
// all sharing the same Settings template.
type Manager struct {
	mu       sync.Mutex
	settings gobreaker.Settings
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewManager returns a Manager that stamps every breaker it creates from
// settings, overriding only the per-breaker Name.
func NewManager(settings gobreaker.Settings) *Manager {
	return &Manager{
		settings: settings,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (m *Manager) Get(name string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[name]; ok {
		return cb
	}

	s := m.settings
	s.Name = name
	cb := gobreaker.NewCircuitBreaker(s)
	m.breakers[name] = cb
	return cb
}

// State returns the current state of the named breaker without tripping a
// request through it.
func (m *Manager) State(name string) gobreaker.State {
	return m.Get(name).State()
}

// Execute runs fn through the named breaker, returning its zero value and
// the breaker's error (gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests,
// or fn's own error) when the call is rejected or fails.
func Execute[T any](m *Manager, name string, fn func() (T, error)) (T, error) {
	var zero T
	result, err := m.Get(name).Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}
