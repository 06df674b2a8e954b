// Package serializer turns common.Message values into bytes and back. Client
// and server pick the same implementation through the --serializer flag.
//
// Implementations:
//
//   - binary: hand written format. A presence bitmap is followed by the
//     length prefixed fields that are set. Smallest and fastest, the default.
//
//   - msgpack: MessagePack with short field tags. Close to binary in size and
//     usable from other languages.
//
//   - json: readable on the wire, useful when debugging with curl against
//     the http transport. Byte payloads are base64 encoded.
//
//   - gob: Go's gob format. Each message carries its type description, which
//     makes it the largest of the four. Kept for comparison in benchmarks.
//
// The Value field of a message already holds tree codec output (msgpack), so
// every serializer copies it as opaque bytes.
//
// All implementations are safe for concurrent use:
//
//	s := serializer.NewBinarySerializer()
//	data, err := s.Serialize(*common.NewGetRequest([]string{"api"}))
//	...
//	var resp common.Message
//	err = s.Deserialize(data, &resp)
package serializer
