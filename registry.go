package flow

import (
	"fmt"
	"sort"
	"sync"
)

// Factory describes element type.
type Factory struct {
	Name        string
	Description string
	Properties  []Property
	// Signals are emitted in addition to the signals of every element.
	Signals []string
	// New returns behaviour of the new element. Element already has the
	// declared properties with default values, behaviour adds pads.
	New func(e *Element) (interface{}, error)
}

// Registry maps element type names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// DefaultRegistry is used by Make and Register.
var DefaultRegistry = NewRegistry()

// NewRegistry returns empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds factory to the registry.
func (r *Registry) Register(f Factory) error {
	if f.Name == "" || f.New == nil {
		return fmt.Errorf("invalid factory %q", f.Name)
	}
	if _, err := newProperties(f.Properties); err != nil {
		return fmt.Errorf("factory %q: %w", f.Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[f.Name]; ok {
		return fmt.Errorf("factory %q: %w", f.Name, ErrDuplicateName)
	}
	r.factories[f.Name] = f
	return nil
}

// Lookup returns factory by element type name.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return Factory{}, fmt.Errorf("%q: %w", name, ErrUnknownElementType)
	}
	return f, nil
}

// Factories returns registered factories sorted by name.
func (r *Registry) Factories() []Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factories := make([]Factory, 0, len(r.factories))
	for _, f := range r.factories {
		factories = append(factories, f)
	}
	sort.Slice(factories, func(i, j int) bool {
		return factories[i].Name < factories[j].Name
	})
	return factories
}

// Make creates element of the given type. Unique name is generated if
// name is empty.
func (r *Registry) Make(typ, name string) (*Element, error) {
	f, err := r.Lookup(typ)
	if err != nil {
		return nil, err
	}
	props, err := newProperties(f.Properties)
	if err != nil {
		return nil, fmt.Errorf("factory %q: %w", typ, err)
	}
	e := newElement(name, f.Name, f.Signals)
	e.props = props
	impl, err := f.New(e)
	if err != nil {
		return nil, fmt.Errorf("make %q: %w", typ, err)
	}
	if s, ok := impl.(Signaller); ok {
		e.signals.declare(s.Signals()...)
	}
	e.impl = impl
	return e, nil
}

// Register adds factory to the default registry.
func Register(f Factory) error {
	return DefaultRegistry.Register(f)
}

// Make creates element of the given type using the default registry.
func Make(typ, name string) (*Element, error) {
	return DefaultRegistry.Make(typ, name)
}

var names = struct {
	sync.Mutex
	counters map[string]int
}{
	counters: make(map[string]int),
}

// uniqueName returns name made of prefix and sequence number.
func uniqueName(prefix string) string {
	names.Lock()
	defer names.Unlock()
	n := names.counters[prefix]
	names.counters[prefix] = n + 1
	return fmt.Sprintf("%s%d", prefix, n)
}
