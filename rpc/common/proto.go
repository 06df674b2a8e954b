package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type" msgpack:"t"`

	// General fields
	Host   string   `json:"host,omitempty" msgpack:"h,omitempty"`    // Used for: Sync (request)
	SyncID int64    `json:"sync_id,omitempty" msgpack:"i,omitempty"` // Used for: Sync (request)
	Path   []string `json:"path,omitempty" msgpack:"p,omitempty"`    // Used for: Get, Children (request), GetSchema (response)
	Value  []byte   `json:"value,omitempty" msgpack:"v,omitempty"`   // Used for: Sync (request), Get, Children (response)

	// Response only fields
	Ok  bool   `json:"ok,omitempty" msgpack:"o,omitempty"`  // Used for: Get responses
	Ack uint8  `json:"ack,omitempty" msgpack:"a,omitempty"` // Used for: Sync responses
	Err string `json:"err,omitempty" msgpack:"e,omitempty"` // Empty if no error, otherwise contains the error message
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewSyncRequest creates a new Sync request. data holds the encoded subtrees.
func NewSyncRequest(host string, id int64, data []byte) *Message {
	return &Message{
		MsgType: MsgTSync,
		Host:    host,
		SyncID:  id,
		Value:   data,
	}
}

// NewSyncResponse creates a new Sync response
func NewSyncResponse(ack uint8, err error) *Message {
	msg := &Message{
		MsgType: MsgTSync,
		Ack:     ack,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewGetSchemaRequest creates a new GetSchema request
func NewGetSchemaRequest() *Message {
	return &Message{
		MsgType: MsgTGetSchema,
	}
}

// NewGetSchemaResponse creates a new GetSchema response carrying the level names
func NewGetSchemaResponse(levels []string, err error) *Message {
	msg := &Message{
		MsgType: MsgTGetSchema,
		Path:    levels,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewGetRequest creates a new Get request
func NewGetRequest(path []string) *Message {
	return &Message{
		MsgType: MsgTGet,
		Path:    path,
	}
}

// NewGetResponse creates a new Get response
func NewGetResponse(value []byte, ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTGet,
		Ok:      ok,
		Value:   value,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewChildrenRequest creates a new Children request
func NewChildrenRequest(path []string) *Message {
	return &Message{
		MsgType: MsgTChildren,
		Path:    path,
	}
}

// NewChildrenResponse creates a new Children response
func NewChildrenResponse(values []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTChildren,
		Value:   values,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTSync:
		return "sync"
	case MsgTGetSchema:
		return "getSchema"
	case MsgTGet:
		return "get"
	case MsgTChildren:
		return "children"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "sync":
		*t = MsgTSync
	case "getSchema":
		*t = MsgTGetSchema
	case "get":
		*t = MsgTGet
	case "children":
		*t = MsgTChildren
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	case "unknown":
		*t = MsgTUnknown
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Master operations

	MsgTSync      // Deliver a sync message from a collector
	MsgTGetSchema // Fetch the key schema of a shard
	MsgTGet       // Read a single value
	MsgTChildren  // Read the leaf values under a path
)
