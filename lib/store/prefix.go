package store

import (
	"strings"
	"sync/atomic"
)

// Namespace returns a view of inner that stores every key with prefix
// prepended. Several namespaces can share one backing store, e.g. the tree
// records and the sync ledger of a replicated shard.
//
// Closing the view only closes the view, the owner of inner closes it.
func Namespace(inner IStore, prefix string) IStore {
	return &namespace{inner: inner, prefix: prefix}
}

type namespace struct {
	inner  IStore
	prefix string
	closed atomic.Bool
}

func (n *namespace) checkOpen() error {
	if n.closed.Load() {
		return NewError(RetCClosed, "namespace is closed")
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (n *namespace) Set(key string, value []byte) error {
	if err := n.checkOpen(); err != nil {
		return err
	}
	return n.inner.Set(n.prefix+key, value)
}

func (n *namespace) Get(key string) ([]byte, bool, error) {
	if err := n.checkOpen(); err != nil {
		return nil, false, err
	}
	return n.inner.Get(n.prefix + key)
}

func (n *namespace) Has(key string) (bool, error) {
	if err := n.checkOpen(); err != nil {
		return false, err
	}
	return n.inner.Has(n.prefix + key)
}

func (n *namespace) Delete(key string) error {
	if err := n.checkOpen(); err != nil {
		return err
	}
	return n.inner.Delete(n.prefix + key)
}

func (n *namespace) Keys() ([]string, error) {
	if err := n.checkOpen(); err != nil {
		return nil, err
	}
	all, err := n.inner.Keys()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if rest, ok := strings.CutPrefix(k, n.prefix); ok {
			keys = append(keys, rest)
		}
	}
	return keys, nil
}

func (n *namespace) Close() error {
	n.closed.Store(true)
	return nil
}
