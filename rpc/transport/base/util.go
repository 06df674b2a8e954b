package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const (
	headerSize = 20

	// MaxFrameSize bounds the payload of one frame. A sync message carries
	// whole subtrees, so this is far above a typical request.
	MaxFrameSize = 64 << 20
)

// writeFrame writes one frame (see doc.go for the layout).
func writeFrame(conn net.Conn, shardID, requestID uint64, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds the limit of %d bytes", len(data), MaxFrameSize)
	}
	var header [headerSize]byte
	binary.BigEndian.PutUint64(header[0:8], shardID)
	binary.BigEndian.PutUint64(header[8:16], requestID)
	binary.BigEndian.PutUint32(header[16:20], uint32(len(data)))

	b := net.Buffers{header[:], data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads one frame. buf is reused for the payload if it is large
// enough, so the returned slice is only valid until buf is handed out again.
func readFrame(conn net.Conn, buf []byte) (shardID, requestID uint64, data []byte, err error) {
	var header [headerSize]byte
	if _, err = io.ReadFull(conn, header[:]); err != nil {
		return 0, 0, nil, err
	}
	shardID = binary.BigEndian.Uint64(header[0:8])
	requestID = binary.BigEndian.Uint64(header[8:16])
	size := binary.BigEndian.Uint32(header[16:20])

	if size > MaxFrameSize {
		// the stream cannot be resynchronized after an unread payload
		return 0, 0, nil, fmt.Errorf("frame of %d bytes exceeds the limit of %d bytes", size, MaxFrameSize)
	}
	if size == 0 {
		return shardID, requestID, []byte{}, nil
	}
	if len(buf) < int(size) {
		buf = make([]byte, size)
	}
	if _, err = io.ReadFull(conn, buf[:size]); err != nil {
		return 0, 0, nil, err
	}
	return shardID, requestID, buf[:size], nil
}
