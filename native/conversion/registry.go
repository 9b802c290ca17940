package conversion

import (
	"fmt"
	"sort"
	"strings"
)

// Registry holds one settlement engine per collateral type. Queue instances
// are constructed explicitly and looked up by symbol; there is no global
// state.
type Registry struct {
	queues map[string]*Engine
}

// NewRegistry constructs an empty queue registry.
func NewRegistry() *Registry {
	return &Registry{queues: make(map[string]*Engine)}
}

// Register adds a queue for its collateral symbol. Registering the same
// symbol twice is a wiring error.
func (r *Registry) Register(engine *Engine) error {
	if r == nil || engine == nil {
		return fmt.Errorf("conversion registry: engine must not be nil")
	}
	symbol := strings.TrimSpace(engine.Collateral())
	if symbol == "" {
		return fmt.Errorf("conversion registry: collateral symbol required")
	}
	if _, exists := r.queues[symbol]; exists {
		return fmt.Errorf("conversion registry: queue for %s already registered", symbol)
	}
	r.queues[symbol] = engine
	return nil
}

// Get returns the queue for the given collateral symbol.
func (r *Registry) Get(collateral string) (*Engine, bool) {
	if r == nil {
		return nil, false
	}
	engine, ok := r.queues[strings.TrimSpace(collateral)]
	return engine, ok
}

// Collaterals lists registered collateral symbols in stable order.
func (r *Registry) Collaterals() []string {
	if r == nil {
		return nil
	}
	symbols := make([]string, 0, len(r.queues))
	for symbol := range r.queues {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
