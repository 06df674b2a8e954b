package internal

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name:     "Command with key and value",
			command:  Command{Type: CommandTSet, Key: "testkey", Value: []byte("testvalue")},
			expected: 1 + 4 + 7 + 9, // Type + KeyLen + Key + Value
		},
		{
			name:     "Command with empty key",
			command:  Command{Type: CommandTSet, Value: []byte("testvalue")},
			expected: 1 + 4 + 0 + 9,
		},
		{
			name:     "Delete command",
			command:  Command{Type: CommandTDelete, Key: "testkey"},
			expected: 1 + 4 + 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.command.SizeBytes()
			if size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name:    "Set with value",
			command: Command{Type: CommandTSet, Key: "campaign-1", Value: []byte{0x82, 0xa3, 'v', 'e', 'r'}},
		},
		{
			name:    "Delete without value",
			command: Command{Type: CommandTDelete, Key: "campaign-1"},
		},
		{
			name:    "Unicode key",
			command: Command{Type: CommandTSet, Key: "kampagne-ü", Value: []byte("x")},
		},
		{
			name:    "Large value",
			command: Command{Type: CommandTSet, Key: "k", Value: bytes.Repeat([]byte{0xff}, 1<<16)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()
			if len(data) != tt.command.SizeBytes() {
				t.Fatalf("Serialize() produced %d bytes, SizeBytes() = %d", len(data), tt.command.SizeBytes())
			}

			var got Command
			if err := got.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}
			if got.Type != tt.command.Type {
				t.Errorf("Type = %v, want %v", got.Type, tt.command.Type)
			}
			if got.Key != tt.command.Key {
				t.Errorf("Key = %q, want %q", got.Key, tt.command.Key)
			}
			if !bytes.Equal(got.Value, tt.command.Value) {
				t.Errorf("Value mismatch (len %d vs %d)", len(got.Value), len(tt.command.Value))
			}
		})
	}
}

// TestDeserializeErrors tests malformed input
func TestDeserializeErrors(t *testing.T) {
	t.Run("Too short", func(t *testing.T) {
		var c Command
		if err := c.Deserialize([]byte{0, 0}); err == nil {
			t.Error("expected error for short header")
		}
	})

	t.Run("Key length exceeds data", func(t *testing.T) {
		data := make([]byte, headerSize+2)
		binary.BigEndian.PutUint32(data[1:headerSize], 10)
		var c Command
		if err := c.Deserialize(data); err == nil {
			t.Error("expected error for truncated key")
		}
	})
}

// TestDeserializeReusesBuffer checks that a previous value buffer is reused and reset
func TestDeserializeReusesBuffer(t *testing.T) {
	c := Command{Value: make([]byte, 0, 64)}
	buf := c.Value[:1]

	if err := c.Deserialize((&Command{Type: CommandTSet, Key: "k", Value: []byte("abc")}).Serialize()); err != nil {
		t.Fatal(err)
	}
	if &c.Value[0] != &buf[0] {
		t.Error("expected value buffer to be reused")
	}

	if err := c.Deserialize((&Command{Type: CommandTDelete, Key: "k"}).Serialize()); err != nil {
		t.Fatal(err)
	}
	if c.Value != nil {
		t.Errorf("expected nil value for delete, got %q", c.Value)
	}
}

func TestCommandTypeString(t *testing.T) {
	if CommandTSet.String() != "Set" || CommandTDelete.String() != "Delete" {
		t.Error("unexpected command names")
	}
	if CommandType(42).String() != "Unknown(42)" {
		t.Errorf("unexpected name for unknown type: %s", CommandType(42))
	}
}
