package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchemaMismatch is returned when a key path does not fit the schema depth.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrInvalidSchema is returned when a schema is constructed from an unusable level list.
	ErrInvalidSchema = errors.New("invalid schema")
)

// KeySchema is the ordered list of level names of a stats tree. Level 0 is the
// root key, the last level names the leaves. A KeySchema is immutable.
type KeySchema struct {
	levels []string
}

// New creates a schema from the given level names. The list must not be empty
// and each name must be non-empty and unique.
func New(levels ...string) (KeySchema, error) {
	if len(levels) == 0 {
		return KeySchema{}, fmt.Errorf("%w: at least one level is required", ErrInvalidSchema)
	}
	seen := make(map[string]struct{}, len(levels))
	for i, l := range levels {
		if l == "" {
			return KeySchema{}, fmt.Errorf("%w: level %d has an empty name", ErrInvalidSchema, i)
		}
		if _, ok := seen[l]; ok {
			return KeySchema{}, fmt.Errorf("%w: duplicate level %q", ErrInvalidSchema, l)
		}
		seen[l] = struct{}{}
	}
	cp := make([]string, len(levels))
	copy(cp, levels)
	return KeySchema{levels: cp}, nil
}

// MustNew is like New but panics on an invalid level list.
func MustNew(levels ...string) KeySchema {
	s, err := New(levels...)
	if err != nil {
		panic(err)
	}
	return s
}

// Parse reads a comma separated level list such as "campaign,creative,day".
func Parse(s string) (KeySchema, error) {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return New(parts...)
}

// Depth returns the number of levels.
func (s KeySchema) Depth() int {
	return len(s.levels)
}

// Levels returns a copy of the level names.
func (s KeySchema) Levels() []string {
	cp := make([]string, len(s.levels))
	copy(cp, s.levels)
	return cp
}

// IsZero reports whether s was never initialised.
func (s KeySchema) IsZero() bool {
	return len(s.levels) == 0
}

// Validate checks that path addresses a leaf, i.e. has exactly Depth segments.
func (s KeySchema) Validate(path []string) error {
	if len(path) != len(s.levels) {
		return s.mismatch(path, "exactly")
	}
	return nil
}

// ValidatePath checks a path used for update and get. Any node of the tree
// may be addressed, so 1 to Depth segments are accepted.
func (s KeySchema) ValidatePath(path []string) error {
	if len(path) == 0 || len(path) > len(s.levels) {
		return s.mismatch(path, "1 to")
	}
	return nil
}

// ValidateQuery checks a children query prefix: 0 to Depth segments.
func (s KeySchema) ValidateQuery(path []string) error {
	if len(path) > len(s.levels) {
		return s.mismatch(path, "at most")
	}
	return nil
}

func (s KeySchema) mismatch(path []string, bound string) error {
	return fmt.Errorf("%w: path %v has %d segments, schema %s expects %s %d",
		ErrSchemaMismatch, path, len(path), s, bound, len(s.levels))
}

// Equal reports whether both schemas have the same levels in the same order.
func (s KeySchema) Equal(o KeySchema) bool {
	if len(s.levels) != len(o.levels) {
		return false
	}
	for i := range s.levels {
		if s.levels[i] != o.levels[i] {
			return false
		}
	}
	return true
}

func (s KeySchema) String() string {
	return "[" + strings.Join(s.levels, ",") + "]"
}
