// Package treetest provides small value types for tests of packages built on
// the tree engine.
package treetest

import (
	"fmt"

	"github.com/ValentinKolb/dStats/lib/tree"
)

// Group is a Container with two merged fields and a derived Sum, computed as
// the sum of each child's Sum and CI.
type Group struct {
	L1  int64 `msgpack:"l1"`
	I2  int64 `msgpack:"i2"`
	Sum int64 `msgpack:"sum"`
}

func (g *Group) Merge(other tree.Value) (tree.Value, error) {
	o, ok := other.(*Group)
	if !ok {
		return nil, fmt.Errorf("cannot merge %T into *Group", other)
	}
	g.L1 += o.L1
	g.I2 += o.I2
	return g, nil
}

func (g *Group) Aggregate(children []tree.Value) (tree.Value, error) {
	var sum int64
	for _, c := range children {
		switch c := c.(type) {
		case *Counter:
			sum += c.Sum + c.CI
		case *Group:
			sum += c.Sum
		}
	}
	g.Sum = sum
	return g, nil
}

func (g *Group) Clone() tree.Value {
	cp := *g
	return &cp
}

// Counter is a Container whose CI is merged by addition and whose Sum is the
// sum of its children's CI.
type Counter struct {
	CI  int64 `msgpack:"ci"`
	Sum int64 `msgpack:"sum"`
}

func (c *Counter) Merge(other tree.Value) (tree.Value, error) {
	o, ok := other.(*Counter)
	if !ok {
		return nil, fmt.Errorf("cannot merge %T into *Counter", other)
	}
	c.CI += o.CI
	return c, nil
}

func (c *Counter) Aggregate(children []tree.Value) (tree.Value, error) {
	var sum int64
	for _, ch := range children {
		if ch, ok := ch.(*Counter); ok {
			sum += ch.CI
		}
	}
	c.Sum = sum
	return c, nil
}

func (c *Counter) Clone() tree.Value {
	cp := *c
	return &cp
}

// Faulty fails every Merge. Aggregate fails when Broken is set.
type Faulty struct {
	N      int64 `msgpack:"n"`
	Broken bool  `msgpack:"b"`
}

func (f *Faulty) Merge(tree.Value) (tree.Value, error) {
	return nil, fmt.Errorf("faulty value cannot be merged")
}

func (f *Faulty) Aggregate([]tree.Value) (tree.Value, error) {
	if f.Broken {
		panic("broken aggregate")
	}
	return f, nil
}

func (f *Faulty) Clone() tree.Value {
	cp := *f
	return &cp
}

// Registry returns a registry with Group, Counter and Faulty registered.
func Registry() *tree.Registry {
	reg := tree.NewRegistry()
	reg.MustRegister("test.group", func() tree.Value { return &Group{} })
	reg.MustRegister("test.counter", func() tree.Value { return &Counter{} })
	reg.MustRegister("test.faulty", func() tree.Value { return &Faulty{} })
	return reg
}

// Codec returns a codec over Registry.
func Codec() *tree.Codec {
	return tree.NewCodec(Registry())
}

// SetCI returns a mutator that sets Counter.CI.
func SetCI(ci int64) func(tree.Value) error {
	return func(v tree.Value) error {
		v.(*Counter).CI = ci
		return nil
	}
}

// SetI2 returns a mutator that sets Group.I2.
func SetI2(i2 int64) func(tree.Value) error {
	return func(v tree.Value) error {
		v.(*Group).I2 = i2
		return nil
	}
}

// Noop is a mutator that leaves the value as created.
func Noop(tree.Value) error { return nil }

// NewCounter returns a factory for a Counter with the given CI.
func NewCounter(ci int64) func() tree.Value {
	return func() tree.Value { return &Counter{CI: ci} }
}

// NewGroup returns a factory for a Group with the given I2.
func NewGroup(i2 int64) func() tree.Value {
	return func() tree.Value { return &Group{I2: i2} }
}
