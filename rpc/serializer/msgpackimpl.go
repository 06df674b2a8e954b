package serializer

import (
	"github.com/ValentinKolb/dStats/rpc/common"
	"github.com/vmihailenco/msgpack/v5"
)

// NewMsgPackSerializer creates a new serializer using MessagePack encoding
func NewMsgPackSerializer() IRPCSerializer {
	return &msgpackSerializerImpl{}
}

// msgpackSerializerImpl implements the IRPCSerializer interface using msgpack encoding
type msgpackSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (m msgpackSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return msgpack.Marshal(&msg)
}

func (m msgpackSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	// omitted fields must not keep values of a reused message
	*msg = common.Message{}
	return msgpack.Unmarshal(b, msg)
}
