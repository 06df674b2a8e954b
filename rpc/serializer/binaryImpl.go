package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dStats/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasHost   byte = 1 << 0
	hasSyncID byte = 1 << 1
	hasPath   byte = 1 << 2
	hasValue  byte = 1 << 3
	hasOk     byte = 1 << 4
	hasErr    byte = 1 << 5
	hasAck    byte = 1 << 6
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	result := make([]byte, b.sizeBytes(msg))

	// Write message type
	result[0] = byte(msg.MsgType)

	var flags byte = 0
	pos := 2 // Start after MsgType and flags

	// Handle Host
	if msg.Host != "" {
		flags |= hasHost
		pos = putBytes(result, pos, []byte(msg.Host))
	}

	// Handle SyncID
	if msg.SyncID != 0 {
		flags |= hasSyncID
		binary.BigEndian.PutUint64(result[pos:pos+8], uint64(msg.SyncID))
		pos += 8
	}

	// Handle Path: segment count followed by length prefixed segments
	if msg.Path != nil {
		flags |= hasPath
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Path)))
		pos += 4
		for _, seg := range msg.Path {
			pos = putBytes(result, pos, []byte(seg))
		}
	}

	// Handle Value
	if msg.Value != nil {
		flags |= hasValue
		pos = putBytes(result, pos, msg.Value)
	}

	// Handle Ok
	if msg.Ok {
		flags |= hasOk
		result[pos] = 1
		pos += 1
	}

	// Handle Ack
	if msg.Ack != 0 {
		flags |= hasAck
		result[pos] = msg.Ack
		pos += 1
	}

	// Handle Err
	if msg.Err != "" {
		flags |= hasErr
		pos = putBytes(result, pos, []byte(msg.Err))
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := data[1]
	pos := 2

	var (
		raw []byte
		err error
	)

	// Read Host if present
	msg.Host = ""
	if flags&hasHost != 0 {
		if raw, pos, err = readBytes(data, pos, "host"); err != nil {
			return err
		}
		msg.Host = string(raw)
	}

	// Read SyncID if present
	msg.SyncID = 0
	if flags&hasSyncID != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for sync id")
		}
		msg.SyncID = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
		pos += 8
	}

	// Read Path if present
	msg.Path = nil
	if flags&hasPath != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for path length")
		}
		n := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		// every segment needs at least its 4 byte length
		if uint64(n)*4 > uint64(len(data)-pos) {
			return fmt.Errorf("data too short for %d path segments", n)
		}
		msg.Path = make([]string, n)
		for i := range msg.Path {
			if raw, pos, err = readBytes(data, pos, "path segment"); err != nil {
				return err
			}
			msg.Path[i] = string(raw)
		}
	}

	// Read Value if present
	if flags&hasValue != 0 {
		if raw, pos, err = readBytes(data, pos, "value"); err != nil {
			return err
		}

		// Read value data - create an empty slice (not nil) if length is 0
		// Allocate only if needed
		if msg.Value == nil || cap(msg.Value) < len(raw) {
			msg.Value = make([]byte, len(raw))
		} else {
			msg.Value = msg.Value[:len(raw)]
		}
		copy(msg.Value, raw)
	} else {
		msg.Value = nil
	}

	// Read Ok if present
	msg.Ok = false
	if flags&hasOk != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for Ok flag")
		}
		msg.Ok = data[pos] != 0
		pos += 1
	}

	// Read Ack if present
	msg.Ack = 0
	if flags&hasAck != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for ack")
		}
		msg.Ack = data[pos]
		pos += 1
	}

	// Read Err if present
	msg.Err = ""
	if flags&hasErr != 0 {
		if raw, _, err = readBytes(data, pos, "error"); err != nil {
			return err
		}
		msg.Err = string(raw)
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// putBytes writes a 4 byte length followed by p at pos and returns the new position
func putBytes(dst []byte, pos int, p []byte) int {
	binary.BigEndian.PutUint32(dst[pos:pos+4], uint32(len(p)))
	pos += 4
	copy(dst[pos:pos+len(p)], p)
	return pos + len(p)
}

// readBytes reads a length prefixed field at pos. The result aliases data.
func readBytes(data []byte, pos int, field string) ([]byte, int, error) {
	if pos+4 > len(data) {
		return nil, pos, fmt.Errorf("data too short for %s length", field)
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if n < 0 || pos+n > len(data) {
		return nil, pos, fmt.Errorf("data too short for %s data", field)
	}
	return data[pos : pos+n], pos + n, nil
}

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	if msg.Host != "" {
		size += 4 + len(msg.Host)
	}
	if msg.SyncID != 0 {
		size += 8
	}
	if msg.Path != nil {
		size += 4 // segment count
		for _, seg := range msg.Path {
			size += 4 + len(seg)
		}
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Ok {
		size += 1
	}
	if msg.Ack != 0 {
		size += 1
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}

	return size
}
