package tree

import (
	"errors"
	"fmt"
	"strings"
)

// MergeFailure describes a node whose Merge or Aggregate call failed.
// Path is relative to the tree the operation ran on.
type MergeFailure struct {
	Path []string
	Err  error
}

func (f *MergeFailure) Error() string {
	return fmt.Sprintf("node /%s: %v", strings.Join(f.Path, "/"), f.Err)
}

func (f *MergeFailure) Unwrap() error {
	return f.Err
}

// appendPath returns path+seg without sharing the backing array of path.
func appendPath(path []string, seg string) []string {
	p := make([]string, len(path)+1)
	copy(p, path)
	p[len(path)] = seg
	return p
}

// --------------------------------------------------------------------------
// Path Operations
// --------------------------------------------------------------------------

// GetOrCreatePath walks from root along path, creating missing nodes.
func GetOrCreatePath(root *Node, path []string) *Node {
	n := root
	for _, seg := range path {
		n = n.child(seg)
	}
	return n
}

// Lookup returns the node at path or nil if any segment is missing.
func Lookup(root *Node, path []string) *Node {
	n := root
	for _, seg := range path {
		if n = n.Child(seg); n == nil {
			return nil
		}
	}
	return n
}

// Get returns the value at path or nil.
func Get(root *Node, path []string) Value {
	n := Lookup(root, path)
	if n == nil {
		return nil
	}
	return n.Value()
}

// Update writes the node at path. If the node has no value yet, create is
// called first. mutate then runs under the node's lock. Afterwards the
// aggregates of the node and all its ancestors are recomputed bottom-up, one
// lock at a time.
//
// The mutation is kept even if an aggregate fails; the returned error then
// joins one *MergeFailure per failing ancestor.
func Update(root *Node, path []string, mutate func(Value) error, create func() Value) error {
	chain := make([]*Node, 0, len(path)+1)
	chain = append(chain, root)
	n := root
	for _, seg := range path {
		n = n.child(seg)
		chain = append(chain, n)
	}

	if err := n.apply(mutate, create); err != nil {
		return err
	}

	var errs []error
	for i := len(chain) - 1; i >= 0; i-- {
		if err := chain[i].recompute(); err != nil {
			errs = append(errs, &MergeFailure{Path: append([]string(nil), path[:i]...), Err: err})
		}
	}
	return errors.Join(errs...)
}

func (n *Node) apply(mutate func(Value) error, create func() Value) (err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mutator panicked: %v", r)
		}
	}()

	if n.value == nil {
		if create == nil {
			return fmt.Errorf("node has no value and no factory was given")
		}
		v := create()
		if v == nil {
			return fmt.Errorf("factory returned no value")
		}
		n.value = v
	}
	if err := mutate(n.value); err != nil {
		return err
	}
	n.modified = nowMillis()
	return nil
}

// Descendants returns the values of every node exactly depth levels below
// root that lies under path. path may be at most depth segments long.
// Nodes without a value are skipped. The order is unspecified.
func Descendants(root *Node, path []string, depth int) []Value {
	if len(path) > depth {
		return nil
	}
	start := Lookup(root, path)
	if start == nil {
		return nil
	}
	var out []Value
	var walk func(n *Node, remaining int)
	walk = func(n *Node, remaining int) {
		if remaining == 0 {
			if v := n.Value(); v != nil {
				out = append(out, v)
			}
			return
		}
		n.children.Range(func(_ string, c *Node) bool {
			walk(c, remaining-1)
			return true
		})
	}
	walk(start, depth-len(path))
	return out
}

// --------------------------------------------------------------------------
// Merge
// --------------------------------------------------------------------------

// Merge folds the incoming subtree into local. Values are adopted where local
// has none and merged otherwise, children are matched by name and children
// that only exist in incoming are adopted as a whole. Container aggregates are
// recomputed once a node's children are merged.
//
// A failing node is passed to report (if non-nil) and the remaining nodes are
// still merged. Merge returns false if any node failed.
//
// incoming is consumed: adopted subtrees become part of local.
func Merge(local, incoming *Node, report func(*MergeFailure)) bool {
	return mergeNode(local, incoming, nil, report)
}

func mergeNode(local, incoming *Node, path []string, report func(*MergeFailure)) bool {
	ok := true
	fail := func(p []string, err error) {
		ok = false
		if report != nil {
			report(&MergeFailure{Path: p, Err: err})
		}
	}

	if err := local.mergeValue(incoming); err != nil {
		fail(path, err)
	}

	incoming.children.Range(func(name string, in *Node) bool {
		childPath := appendPath(path, name)
		existing, loaded := local.children.LoadOrStore(name, in)
		if loaded && !mergeNode(existing, in, childPath, report) {
			ok = false
		}
		return true
	})

	if err := local.recompute(); err != nil {
		fail(path, err)
	}
	return ok
}

func (n *Node) mergeValue(incoming *Node) error {
	incoming.mu.Lock()
	iv, ict, imt := incoming.value, incoming.created, incoming.modified
	incoming.mu.Unlock()

	n.mu.Lock()
	defer n.mu.Unlock()
	if ict < n.created {
		n.created = ict
	}
	if imt > n.modified {
		n.modified = imt
	}
	if iv == nil {
		return nil
	}
	if n.value == nil {
		n.value = iv
		return nil
	}
	v, err := safeMerge(n.value, iv)
	if err != nil {
		return err
	}
	n.value = v
	return nil
}

// RecomputeAggregates recomputes every Container in the tree, children before
// parents. Failures are reported like in Merge.
func RecomputeAggregates(root *Node, report func(*MergeFailure)) bool {
	return recomputeNode(root, nil, report)
}

func recomputeNode(n *Node, path []string, report func(*MergeFailure)) bool {
	ok := true
	n.children.Range(func(name string, c *Node) bool {
		if !recomputeNode(c, appendPath(path, name), report) {
			ok = false
		}
		return true
	})
	if err := n.recompute(); err != nil {
		ok = false
		if report != nil {
			report(&MergeFailure{Path: path, Err: err})
		}
	}
	return ok
}

// Walk calls fn for every node of the tree in depth-first order with the
// node's path relative to root. Children are visited in name order.
func Walk(root *Node, fn func(path []string, n *Node)) {
	var walk func(path []string, n *Node)
	walk = func(path []string, n *Node) {
		fn(path, n)
		for _, name := range n.ChildNames() {
			if c := n.Child(name); c != nil {
				walk(appendPath(path, name), c)
			}
		}
	}
	walk(nil, root)
}

// Height returns the number of levels below root, 0 for a node without children.
func Height(root *Node) int {
	h := 0
	root.children.Range(func(_ string, c *Node) bool {
		if ch := Height(c) + 1; ch > h {
			h = ch
		}
		return true
	})
	return h
}
