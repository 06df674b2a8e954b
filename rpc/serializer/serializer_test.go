package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/dStats/lib/statsdb"
	"github.com/ValentinKolb/dStats/lib/tree"
	"github.com/ValentinKolb/dStats/lib/values"
	"github.com/ValentinKolb/dStats/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":    NewJSONSerializer,
	"GOB":     NewGOBSerializer,
	"Binary":  NewBinarySerializer,
	"MsgPack": NewMsgPackSerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Sync request
		{
			MsgType: common.MsgTSync,
			Host:    "collector-1",
			SyncID:  1712345678901,
			Value:   []byte("encoded-subtrees"),
		},

		// Sync response
		{
			MsgType: common.MsgTSync,
			Ack:     2,
		},

		// Get request and response
		{
			MsgType: common.MsgTGet,
			Path:    []string{"service", "endpoint"},
		},
		{
			MsgType: common.MsgTGet,
			Value:   []byte("encoded-value"),
			Ok:      true,
		},

		// GetSchema response
		{
			MsgType: common.MsgTGetSchema,
			Path:    []string{"service", "endpoint", "status"},
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Err:     "test error message",
		},

		// Message with all fields filled
		{
			MsgType: common.MsgTChildren,
			Host:    "host",
			SyncID:  -1,
			Path:    []string{"a", "", "c"},
			Value:   []byte{0, 1, 2, 255},
			Ok:      true,
			Ack:     1,
			Err:     "partial",
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestSyncPayload sends an encoded sync message through every serializer and
// checks that the subtrees survive unchanged
func TestSyncPayload(t *testing.T) {
	codec := values.NewCodec()
	root := tree.NewNode()
	if err := tree.Update(root, []string{"login", "200"}, values.Increment("hits", 3), values.Factory(true)); err != nil {
		t.Fatal(err)
	}
	if err := tree.Update(root, []string{"login"}, values.Increment("hits", 0), values.Factory(false)); err != nil {
		t.Fatal(err)
	}
	payload, err := statsdb.EncodeSync(codec, &statsdb.Sync{ID: 42, Data: map[string]*tree.Node{"auth": root}})
	if err != nil {
		t.Fatal(err)
	}

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			s := factory()
			data, err := s.Serialize(*common.NewSyncRequest("collector-1", 42, payload))
			if err != nil {
				t.Fatal(err)
			}
			var msg common.Message
			if err := s.Deserialize(data, &msg); err != nil {
				t.Fatal(err)
			}

			sync, err := statsdb.DecodeSync(codec, msg.Value)
			if err != nil {
				t.Fatal(err)
			}
			if sync.ID != 42 || msg.SyncID != 42 || msg.Host != "collector-1" {
				t.Fatalf("header changed: id %d/%d host %q", sync.ID, msg.SyncID, msg.Host)
			}
			leaf, ok := tree.Get(sync.Data["auth"], []string{"login", "200"}).(*values.Counters)
			if !ok || leaf.Get("hits") != 3 {
				t.Errorf("leaf not restored: %v", tree.Get(sync.Data["auth"], []string{"login", "200"}))
			}
			rollup, ok := tree.Get(sync.Data["auth"], []string{"login"}).(*values.Rollup)
			if !ok || rollup.Sum("hits") != 3 {
				t.Errorf("aggregate not restored: %v", tree.Get(sync.Data["auth"], []string{"login"}))
			}
		})
	}
}

// TestReusedMessage tests that deserializing into a used message clears stale fields
func TestReusedMessage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			full, err := serializer.Serialize(testMessages()[7])
			if err != nil {
				t.Fatal(err)
			}
			small, err := serializer.Serialize(common.Message{MsgType: common.MsgTSuccess})
			if err != nil {
				t.Fatal(err)
			}

			var msg common.Message
			if err := serializer.Deserialize(full, &msg); err != nil {
				t.Fatal(err)
			}
			if err := serializer.Deserialize(small, &msg); err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(common.Message{MsgType: common.MsgTSuccess}, msg) {
				t.Errorf("stale fields after reuse: %+v", msg)
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test for MsgTUnknown since this should raise an error)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTChildren; msgType++ {
				msg := common.Message{MsgType: msgType}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Empty value slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTGet,
				Value:   []byte{},
			},
		},
		{
			name: "Empty path but not nil",
			msg: common.Message{
				MsgType: common.MsgTChildren,
				Path:    []string{},
			},
		},
		{
			name: "Path with empty segments",
			msg: common.Message{
				MsgType: common.MsgTGet,
				Path:    []string{"", ""},
			},
		},
		{
			name: "Negative sync id",
			msg: common.Message{
				MsgType: common.MsgTSync,
				SyncID:  -42,
				Host:    "h",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			// the binary format keeps the nil/empty distinction of slices
			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("mismatch:\nexpected %#v\ngot      %#v", tc.msg, result)
			}
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1}, // Only message type, no flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for host",
			data:        []byte{1, hasHost, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Truncated sync id",
			data:        []byte{1, hasSyncID, 0, 0, 0},
			expectError: true,
		},
		{
			name:        "Too many path segments",
			data:        []byte{1, hasPath, 0xff, 0xff, 0xff, 0xff},
			expectError: true,
		},
		{
			name:        "Invalid length for value",
			data:        []byte{1, hasValue, 0, 0, 0, 10}, // Claims value length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Missing ack",
			data:        []byte{1, hasAck},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
