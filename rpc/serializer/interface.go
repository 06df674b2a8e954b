package serializer

import "github.com/ValentinKolb/dStats/rpc/common"

// IRPCSerializer converts messages to and from their wire form. Client and
// server must use the same implementation.
type IRPCSerializer interface {
	// Serialize encodes msg. Value payloads are already encoded by the
	// tree codec and are copied as opaque bytes.
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize decodes b into msg, overwriting all of its fields.
	Deserialize(b []byte, msg *common.Message) error
}
