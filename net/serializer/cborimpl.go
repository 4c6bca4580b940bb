package serializer

import (
	"github.com/ValentinKolb/dNet/net/common"
	"github.com/fxamacker/cbor/v2"
)

// NewCBORSerializer creates a new serializer using deterministic CBOR encoding
func NewCBORSerializer() IPacketSerializer {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		// the options are constant, this cannot fail at runtime
		panic(err)
	}
	return &cborSerializerImpl{em: em}
}

// cborSerializerImpl implements the IPacketSerializer interface using cbor encoding
type cborSerializerImpl struct {
	em cbor.EncMode
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IPacketSerializer)
// --------------------------------------------------------------------------

func (c cborSerializerImpl) Serialize(p common.Packet) ([]byte, error) {
	return c.em.Marshal(p)
}

func (c cborSerializerImpl) Deserialize(b []byte, p *common.Packet) error {
	*p = common.Packet{}
	return cbor.Unmarshal(b, p)
}

func (c cborSerializerImpl) Size(p common.Packet) int {
	b, err := c.em.Marshal(p)
	if err != nil {
		return 0
	}
	return len(b)
}
