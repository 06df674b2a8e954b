package tree

import (
	"fmt"
	"reflect"
	"sync"
)

// --------------------------------------------------------------------------
// Value Contracts
// --------------------------------------------------------------------------

// Value is the payload stored at a node of the tree.
type Value interface {
	// Merge combines other (always of the same concrete type) into the receiver
	// and returns the result. Implementations usually mutate and return the receiver.
	Merge(other Value) (Value, error)
}

// Container is a Value with fields derived from the node's direct children.
type Container interface {
	Value
	// Aggregate recomputes the derived fields from the given child values.
	// It must be a pure function of its input, it is never incremental.
	Aggregate(children []Value) (Value, error)
}

// Cloner is implemented by values that can produce an independent copy.
// The engine hands out clones to readers so a value is never observed while
// another goroutine mutates it.
type Cloner interface {
	Clone() Value
}

// snapshot returns a copy of v if v supports it.
func snapshot(v Value) Value {
	if c, ok := v.(Cloner); ok && v != nil {
		return c.Clone()
	}
	return v
}

// safeMerge calls local.Merge and turns panics into errors.
func safeMerge(local, incoming Value) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("merge panicked: %v", r)
		}
	}()
	if reflect.TypeOf(local) != reflect.TypeOf(incoming) {
		return nil, fmt.Errorf("cannot merge %T into %T", incoming, local)
	}
	v, err = local.Merge(incoming)
	if err == nil && v == nil {
		err = fmt.Errorf("merge of %T returned no value", local)
	}
	return v, err
}

// safeAggregate calls c.Aggregate and turns panics into errors.
func safeAggregate(c Container, children []Value) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("aggregate panicked: %v", r)
		}
	}()
	v, err = c.Aggregate(children)
	if err == nil && v == nil {
		err = fmt.Errorf("aggregate of %T returned no value", c)
	}
	return v, err
}

// --------------------------------------------------------------------------
// Type Registry
// --------------------------------------------------------------------------

// Registry maps type tags to value factories. The tag is written next to every
// serialized value so the receiver can rebuild the concrete type.
type Registry struct {
	mu     sync.RWMutex
	byTag  map[string]func() Value
	byType map[reflect.Type]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byTag:  make(map[string]func() Value),
		byType: make(map[reflect.Type]string),
	}
}

// Register adds a value type under tag. The factory must return a pointer to a
// fresh zero value. Registering the same tag or type twice is an error.
func (r *Registry) Register(tag string, factory func() Value) error {
	if tag == "" {
		return fmt.Errorf("empty type tag")
	}
	v := factory()
	if v == nil {
		return fmt.Errorf("factory for %q returned nil", tag)
	}
	typ := reflect.TypeOf(v)
	if typ.Kind() != reflect.Pointer {
		return fmt.Errorf("factory for %q must return a pointer, got %s", tag, typ)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byTag[tag]; ok {
		return fmt.Errorf("type tag %q already registered", tag)
	}
	if other, ok := r.byType[typ]; ok {
		return fmt.Errorf("type %s already registered as %q", typ, other)
	}
	r.byTag[tag] = factory
	r.byType[typ] = tag
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(tag string, factory func() Value) {
	if err := r.Register(tag, factory); err != nil {
		panic(err)
	}
}

// TagOf returns the tag v was registered under.
func (r *Registry) TagOf(v Value) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tag, ok := r.byType[reflect.TypeOf(v)]
	if !ok {
		return "", fmt.Errorf("type %T is not registered", v)
	}
	return tag, nil
}

// New creates a zero value for tag.
func (r *Registry) New(tag string) (Value, error) {
	r.mu.RLock()
	factory, ok := r.byTag[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown type tag %q", tag)
	}
	return factory(), nil
}
