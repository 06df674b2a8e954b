package statsdb

import (
	"fmt"

	"github.com/ValentinKolb/dStats/lib/tree"
)

// Updater is implemented by Master and Node.
type Updater interface {
	Update(path []string, mutate func(tree.Value) error, create func() tree.Value) error
}

// Getter is implemented by Master and Node.
type Getter interface {
	Get(path []string) (tree.Value, error)
}

var (
	_ Updater = (*Master)(nil)
	_ Updater = (*Node)(nil)
	_ Getter  = (*Master)(nil)
	_ Getter  = (*Node)(nil)
)

// Update is a typed wrapper around Updater.Update. create may be nil if the
// node is known to exist.
func Update[T tree.Value](db Updater, path []string, mutate func(T), create func() T) error {
	var factory func() tree.Value
	if create != nil {
		factory = func() tree.Value { return create() }
	}
	return db.Update(path, func(v tree.Value) error {
		t, ok := v.(T)
		if !ok {
			return fmt.Errorf("value at %v is %T, not %T", path, v, *new(T))
		}
		mutate(t)
		return nil
	}, factory)
}

// Get is a typed wrapper around Getter.Get. The flag is false if the node has
// no value or the value is of another type.
func Get[T tree.Value](db Getter, path []string) (T, bool, error) {
	var zero T
	v, err := db.Get(path)
	if err != nil || v == nil {
		return zero, false, err
	}
	t, ok := v.(T)
	return t, ok, nil
}
