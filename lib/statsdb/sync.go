package statsdb

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/dStats/lib/schema"
	"github.com/ValentinKolb/dStats/lib/tree"
	"github.com/vmihailenco/msgpack/v5"
)

// --------------------------------------------------------------------------
// Sync Message
// --------------------------------------------------------------------------

// Sync is a batch of locally buffered subtrees sent from a collector to the
// master. ID is an opaque token that grows with every batch of one host.
type Sync struct {
	ID   int64
	Data map[string]*tree.Node // root key -> dirty subtree
}

// IsEmpty reports whether the message carries no subtrees.
func (s *Sync) IsEmpty() bool {
	return s == nil || len(s.Data) == 0
}

// Clone returns a deep copy of the message.
func (s *Sync) Clone() *Sync {
	cp := &Sync{ID: s.ID, Data: make(map[string]*tree.Node, len(s.Data))}
	for k, n := range s.Data {
		if n != nil {
			cp.Data[k] = n.Clone()
		}
	}
	return cp
}

type wireSync struct {
	ID   int64              `msgpack:"id"`
	Data msgpack.RawMessage `msgpack:"data"`
}

// EncodeSync serializes a sync message with the codec's value types.
func EncodeSync(c *tree.Codec, s *Sync) ([]byte, error) {
	data, err := c.EncodeNodes(s.Data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(&wireSync{ID: s.ID, Data: data}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSync is the inverse of EncodeSync.
func DecodeSync(c *tree.Codec, b []byte) (*Sync, error) {
	var w wireSync
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("failed to decode sync: %w", err)
	}
	data, err := c.DecodeNodes(w.Data)
	if err != nil {
		return nil, err
	}
	return &Sync{ID: w.ID, Data: data}, nil
}

// --------------------------------------------------------------------------
// Remote Boundary
// --------------------------------------------------------------------------

// Ack is the master's answer to a sync message.
type Ack uint8

const (
	AckRejected       Ack = iota // The master refused the message, nothing was applied.
	AckApplied                   // The message was merged.
	AckAlreadyApplied            // The message id was already accepted for this host, nothing changed.
)

// Delivered reports whether the collector may discard the message.
func (a Ack) Delivered() bool {
	return a == AckApplied || a == AckAlreadyApplied
}

func (a Ack) String() string {
	switch a {
	case AckRejected:
		return "rejected"
	case AckApplied:
		return "applied"
	case AckAlreadyApplied:
		return "already_applied"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// RemoteStatsDB is how a collector reaches its master. Transport failures are
// returned as errors; an Ack is only returned if the master answered.
type RemoteStatsDB interface {
	// Update delivers a sync message from host.
	Update(ctx context.Context, msg *Sync, host string) (Ack, error)
	// GetSchema returns the key schema of the master.
	GetSchema(ctx context.Context) (schema.KeySchema, error)
}

// --------------------------------------------------------------------------
// Tokens
// --------------------------------------------------------------------------

// TokenSource produces sync ids. Ids of one source must be strictly increasing.
type TokenSource interface {
	Next() int64
}

// ClockTokens issues the current time in milliseconds, or last+1 if the clock
// has not moved past the previous token.
type ClockTokens struct {
	mu   sync.Mutex
	last int64
	now  func() int64
}

// NewClockTokens creates a token source whose first token is greater than last.
func NewClockTokens(last int64) *ClockTokens {
	return &ClockTokens{last: last, now: func() int64 { return time.Now().UnixMilli() }}
}

func (c *ClockTokens) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.now()
	if next <= c.last {
		next = c.last + 1
	}
	c.last = next
	return next
}
