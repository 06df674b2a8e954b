package tree

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// --------------------------------------------------------------------------
// Wire Format
// --------------------------------------------------------------------------

// wireNode is the serialized shape of a Node. T is the type tag of the value,
// V its msgpack payload. Both are absent for nodes without a value.
type wireNode struct {
	T  string               `msgpack:"t,omitempty"`
	V  msgpack.RawMessage   `msgpack:"v,omitempty"`
	CT int64                `msgpack:"ct"`
	MT int64                `msgpack:"mt"`
	C  map[string]*wireNode `msgpack:"c,omitempty"`
}

// wireValue is a single tagged value, used for get and children results.
type wireValue struct {
	T string             `msgpack:"t"`
	V msgpack.RawMessage `msgpack:"v"`
}

// wireRecord is the persisted form of one root key's tree.
type wireRecord struct {
	Ver   uint8     `msgpack:"ver"`
	Stamp int64     `msgpack:"s,omitempty"`
	Root  *wireNode `msgpack:"root"`
}

const (
	// RecordVersionLegacy marks records written without stored aggregates.
	RecordVersionLegacy uint8 = 0
	// RecordVersion is the version written by EncodeRecord.
	RecordVersion uint8 = 1
)

// Codec serializes trees and values with msgpack. Values are written with the
// type tag from the registry.
type Codec struct {
	reg *Registry
}

// NewCodec creates a codec that resolves value types through reg.
func NewCodec(reg *Registry) *Codec {
	return &Codec{reg: reg}
}

// Registry returns the type registry of the codec.
func (c *Codec) Registry() *Registry {
	return c.reg
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshal(b []byte, v any) error {
	dec := msgpack.GetDecoder()
	dec.Reset(bytes.NewReader(b))
	err := dec.Decode(v)
	msgpack.PutDecoder(dec)
	return err
}

// --------------------------------------------------------------------------
// Values
// --------------------------------------------------------------------------

func (c *Codec) toWireValue(v Value) (string, msgpack.RawMessage, error) {
	tag, err := c.reg.TagOf(v)
	if err != nil {
		return "", nil, err
	}
	raw, err := marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode value %q: %w", tag, err)
	}
	return tag, raw, nil
}

func (c *Codec) fromWireValue(tag string, raw msgpack.RawMessage) (Value, error) {
	v, err := c.reg.New(tag)
	if err != nil {
		return nil, err
	}
	if err := unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("failed to decode value %q: %w", tag, err)
	}
	return v, nil
}

// EncodeValue serializes a single tagged value.
func (c *Codec) EncodeValue(v Value) ([]byte, error) {
	tag, raw, err := c.toWireValue(v)
	if err != nil {
		return nil, err
	}
	return marshal(&wireValue{T: tag, V: raw})
}

// DecodeValue is the inverse of EncodeValue.
func (c *Codec) DecodeValue(b []byte) (Value, error) {
	var w wireValue
	if err := unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return c.fromWireValue(w.T, w.V)
}

// EncodeValues serializes a list of tagged values.
func (c *Codec) EncodeValues(vs []Value) ([]byte, error) {
	ws := make([]wireValue, len(vs))
	for i, v := range vs {
		tag, raw, err := c.toWireValue(v)
		if err != nil {
			return nil, err
		}
		ws[i] = wireValue{T: tag, V: raw}
	}
	return marshal(ws)
}

// DecodeValues is the inverse of EncodeValues.
func (c *Codec) DecodeValues(b []byte) ([]Value, error) {
	var ws []wireValue
	if err := unmarshal(b, &ws); err != nil {
		return nil, fmt.Errorf("failed to decode values: %w", err)
	}
	vs := make([]Value, len(ws))
	for i, w := range ws {
		v, err := c.fromWireValue(w.T, w.V)
		if err != nil {
			return nil, err
		}
		vs[i] = v
	}
	return vs, nil
}

// --------------------------------------------------------------------------
// Nodes
// --------------------------------------------------------------------------

func (c *Codec) toWire(n *Node) (*wireNode, error) {
	n.mu.Lock()
	w := &wireNode{CT: n.created, MT: n.modified}
	v := n.value
	var err error
	if v != nil {
		w.T, w.V, err = c.toWireValue(v)
	}
	n.mu.Unlock()
	if err != nil {
		return nil, err
	}

	n.children.Range(func(name string, child *Node) bool {
		var cw *wireNode
		if cw, err = c.toWire(child); err != nil {
			return false
		}
		if w.C == nil {
			w.C = make(map[string]*wireNode)
		}
		w.C[name] = cw
		return true
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (c *Codec) fromWire(w *wireNode) (*Node, error) {
	n := newNodeAt(w.CT, w.MT)
	if w.T != "" {
		v, err := c.fromWireValue(w.T, w.V)
		if err != nil {
			return nil, err
		}
		n.value = v
	}
	for name, cw := range w.C {
		if cw == nil {
			continue
		}
		child, err := c.fromWire(cw)
		if err != nil {
			return nil, fmt.Errorf("child %q: %w", name, err)
		}
		n.children.Store(name, child)
	}
	return n, nil
}

// EncodeNode serializes the subtree rooted at n.
func (c *Codec) EncodeNode(n *Node) ([]byte, error) {
	w, err := c.toWire(n)
	if err != nil {
		return nil, err
	}
	return marshal(w)
}

// DecodeNode is the inverse of EncodeNode.
func (c *Codec) DecodeNode(b []byte) (*Node, error) {
	var w wireNode
	if err := unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("failed to decode node: %w", err)
	}
	return c.fromWire(&w)
}

// EncodeNodes serializes a map of named subtrees, e.g. the payload of a sync.
func (c *Codec) EncodeNodes(nodes map[string]*Node) ([]byte, error) {
	ws := make(map[string]*wireNode, len(nodes))
	for key, n := range nodes {
		w, err := c.toWire(n)
		if err != nil {
			return nil, fmt.Errorf("root %q: %w", key, err)
		}
		ws[key] = w
	}
	return marshal(ws)
}

// DecodeNodes is the inverse of EncodeNodes.
func (c *Codec) DecodeNodes(b []byte) (map[string]*Node, error) {
	var ws map[string]*wireNode
	if err := unmarshal(b, &ws); err != nil {
		return nil, fmt.Errorf("failed to decode nodes: %w", err)
	}
	nodes := make(map[string]*Node, len(ws))
	for key, w := range ws {
		if w == nil {
			continue
		}
		n, err := c.fromWire(w)
		if err != nil {
			return nil, fmt.Errorf("root %q: %w", key, err)
		}
		nodes[key] = n
	}
	return nodes, nil
}

// EncodeRecord serializes the tree of one root key for persistence.
func (c *Codec) EncodeRecord(root *Node) ([]byte, error) {
	return c.EncodeStampedRecord(root, 0)
}

// EncodeStampedRecord is EncodeRecord with an opaque stamp stored next to the
// tree. Collectors stamp buffer records with their sync epoch.
func (c *Codec) EncodeStampedRecord(root *Node, stamp int64) ([]byte, error) {
	w, err := c.toWire(root)
	if err != nil {
		return nil, err
	}
	return marshal(&wireRecord{Ver: RecordVersion, Stamp: stamp, Root: w})
}

// DecodeRecord loads a persisted tree. The returned flag is true if the record
// was written without aggregates and needs RecomputeAggregates.
func (c *Codec) DecodeRecord(b []byte) (*Node, bool, error) {
	n, _, legacy, err := c.DecodeStampedRecord(b)
	return n, legacy, err
}

// DecodeStampedRecord is DecodeRecord that also returns the stamp. Records
// written without one have stamp 0.
func (c *Codec) DecodeStampedRecord(b []byte) (*Node, int64, bool, error) {
	var r wireRecord
	if err := unmarshal(b, &r); err != nil {
		return nil, 0, false, fmt.Errorf("failed to decode record: %w", err)
	}
	if r.Ver > RecordVersion {
		return nil, 0, false, fmt.Errorf("unsupported record version %d", r.Ver)
	}
	if r.Root == nil {
		return NewNode(), r.Stamp, false, nil
	}
	n, err := c.fromWire(r.Root)
	if err != nil {
		return nil, 0, false, err
	}
	return n, r.Stamp, r.Ver == RecordVersionLegacy, nil
}

// EncodeLegacyRecord writes a record in the format that predates stored
// aggregates. It exists to exercise the upgrade path.
func (c *Codec) EncodeLegacyRecord(root *Node) ([]byte, error) {
	w, err := c.toWire(root)
	if err != nil {
		return nil, err
	}
	return marshal(&wireRecord{Ver: RecordVersionLegacy, Root: w})
}
