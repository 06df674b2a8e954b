package tree

import (
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Node is one position of a stats tree. Its value is guarded by its own
// mutex, its children live in a concurrent map so paths can be created
// without locking the parent.
type Node struct {
	mu       sync.Mutex
	aggMu    sync.Mutex // serializes recompute
	value    Value
	children *xsync.MapOf[string, *Node]
	created  int64
	modified int64
}

// NewNode creates an empty node stamped with the current time.
func NewNode() *Node {
	now := nowMillis()
	return newNodeAt(now, now)
}

func newNodeAt(created, modified int64) *Node {
	return &Node{
		children: xsync.NewMapOf[string, *Node](),
		created:  created,
		modified: modified,
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// Value returns the node's value or nil. Values implementing Cloner are copied.
func (n *Node) Value() Value {
	n.mu.Lock()
	defer n.mu.Unlock()
	return snapshot(n.value)
}

// CreatedAt returns the creation time in unix milliseconds.
func (n *Node) CreatedAt() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.created
}

// ModifiedAt returns the last write time in unix milliseconds.
func (n *Node) ModifiedAt() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.modified
}

// Child returns the direct child called name or nil.
func (n *Node) Child(name string) *Node {
	c, _ := n.children.Load(name)
	return c
}

// ChildNames returns the sorted names of the direct children.
func (n *Node) ChildNames() []string {
	names := make([]string, 0, n.children.Size())
	n.children.Range(func(name string, _ *Node) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// IsEmpty reports whether the node has neither a value nor children.
func (n *Node) IsEmpty() bool {
	n.mu.Lock()
	hasValue := n.value != nil
	n.mu.Unlock()
	return !hasValue && n.children.Size() == 0
}

// child returns the child called name, creating it if needed.
func (n *Node) child(name string) *Node {
	c, _ := n.children.LoadOrCompute(name, NewNode)
	return c
}

// childValues collects snapshots of the direct children's values, locking one
// child at a time. Children without a value are skipped.
func (n *Node) childValues() []Value {
	vals := make([]Value, 0, n.children.Size())
	n.children.Range(func(_ string, c *Node) bool {
		if v := c.Value(); v != nil {
			vals = append(vals, v)
		}
		return true
	})
	return vals
}

// recompute refreshes the derived fields of a Container value. It holds the
// node's own lock only while running Aggregate, never while reading children.
// aggMu spans the read of the children and the write, so a recompute that
// started earlier can not overwrite the result of one that saw newer children.
func (n *Node) recompute() error {
	n.aggMu.Lock()
	defer n.aggMu.Unlock()

	n.mu.Lock()
	_, ok := n.value.(Container)
	n.mu.Unlock()
	if !ok {
		return nil
	}

	vals := n.childValues()

	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.value.(Container)
	if !ok {
		return nil
	}
	v, err := safeAggregate(c, vals)
	if err != nil {
		return err
	}
	n.value = v
	return nil
}

// SetValue replaces the value of the node and bumps its modification time.
func (n *Node) SetValue(v Value) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.value = v
	n.modified = nowMillis()
}

// Clone returns a deep copy of the subtree rooted at n. Values without a Clone
// method are shared.
func (n *Node) Clone() *Node {
	n.mu.Lock()
	cp := newNodeAt(n.created, n.modified)
	cp.value = snapshot(n.value)
	n.mu.Unlock()
	n.children.Range(func(name string, c *Node) bool {
		cp.children.Store(name, c.Clone())
		return true
	})
	return cp
}
