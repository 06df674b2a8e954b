package values

import (
	"fmt"
	"sort"

	"github.com/ValentinKolb/dStats/lib/tree"
)

const (
	TagCounters = "counters"
	TagRollup   = "rollup"
)

// Register adds Counters and Rollup to reg.
func Register(reg *tree.Registry) error {
	if err := reg.Register(TagCounters, func() tree.Value { return &Counters{} }); err != nil {
		return err
	}
	return reg.Register(TagRollup, func() tree.Value { return &Rollup{} })
}

// NewRegistry returns a registry with the built-in value types.
func NewRegistry() *tree.Registry {
	reg := tree.NewRegistry()
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}

// NewCodec returns a codec over NewRegistry.
func NewCodec() *tree.Codec {
	return tree.NewCodec(NewRegistry())
}

// --------------------------------------------------------------------------
// Counters
// --------------------------------------------------------------------------

// Counters is a set of named int64 counters. Merging adds per name.
type Counters struct {
	N map[string]int64 `msgpack:"n,omitempty"`
}

// Add increments the counter name by delta.
func (c *Counters) Add(name string, delta int64) {
	if c.N == nil {
		c.N = make(map[string]int64)
	}
	c.N[name] += delta
}

// Get returns the counter name or zero.
func (c *Counters) Get(name string) int64 {
	return c.N[name]
}

// Names returns the sorted counter names.
func (c *Counters) Names() []string {
	names := make([]string, 0, len(c.N))
	for n := range c.N {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *Counters) addAll(o *Counters) {
	for n, v := range o.N {
		c.Add(n, v)
	}
}

func (c *Counters) Merge(other tree.Value) (tree.Value, error) {
	o, ok := other.(*Counters)
	if !ok {
		return nil, fmt.Errorf("cannot merge %T into *Counters", other)
	}
	c.addAll(o)
	return c, nil
}

func (c *Counters) Clone() tree.Value {
	cp := &Counters{}
	cp.addAll(c)
	return cp
}

func (c *Counters) String() string {
	s := "{"
	for i, n := range c.Names() {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%d", n, c.N[n])
	}
	return s + "}"
}

// --------------------------------------------------------------------------
// Rollup
// --------------------------------------------------------------------------

// Rollup is a Container. Own holds counters written to the node itself and is
// merged. Total is derived: the sum of Own and Total of every direct child.
type Rollup struct {
	Own   Counters `msgpack:"own"`
	Total Counters `msgpack:"total"`
}

// Add increments the own counter name by delta.
func (r *Rollup) Add(name string, delta int64) {
	r.Own.Add(name, delta)
}

// Sum returns Own+Total for name.
func (r *Rollup) Sum(name string) int64 {
	return r.Own.Get(name) + r.Total.Get(name)
}

func (r *Rollup) Merge(other tree.Value) (tree.Value, error) {
	o, ok := other.(*Rollup)
	if !ok {
		return nil, fmt.Errorf("cannot merge %T into *Rollup", other)
	}
	r.Own.addAll(&o.Own)
	return r, nil
}

func (r *Rollup) Aggregate(children []tree.Value) (tree.Value, error) {
	var total Counters
	for _, child := range children {
		switch c := child.(type) {
		case *Counters:
			total.addAll(c)
		case *Rollup:
			total.addAll(&c.Own)
			total.addAll(&c.Total)
		default:
			return nil, fmt.Errorf("rollup cannot aggregate child of type %T", child)
		}
	}
	r.Total = total
	return r, nil
}

func (r *Rollup) Clone() tree.Value {
	cp := &Rollup{}
	cp.Own.addAll(&r.Own)
	cp.Total.addAll(&r.Total)
	return cp
}

func (r *Rollup) String() string {
	return fmt.Sprintf("own=%s total=%s", r.Own.String(), r.Total.String())
}

// --------------------------------------------------------------------------
// Mutators
// --------------------------------------------------------------------------

// Increment returns a mutator adding delta to the counter name of a Counters
// or Rollup value.
func Increment(name string, delta int64) func(tree.Value) error {
	return func(v tree.Value) error {
		switch v := v.(type) {
		case *Counters:
			v.Add(name, delta)
		case *Rollup:
			v.Add(name, delta)
		default:
			return fmt.Errorf("cannot increment %q on %T", name, v)
		}
		return nil
	}
}

// Factory returns the constructor for a leaf (Counters) or an inner node (Rollup).
func Factory(leaf bool) func() tree.Value {
	if leaf {
		return func() tree.Value { return &Counters{} }
	}
	return func() tree.Value { return &Rollup{} }
}
