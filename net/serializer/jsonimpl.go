package serializer

import (
	"encoding/json"

	"github.com/ValentinKolb/dNet/net/common"
)

// NewJSONSerializer creates a new serializer using json encoding.
// Useful for debugging captures; both peers must agree on it.
func NewJSONSerializer() IPacketSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IPacketSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IPacketSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(p common.Packet) ([]byte, error) {
	return json.Marshal(p)
}

func (j jsonSerializerImpl) Deserialize(b []byte, p *common.Packet) error {
	*p = common.Packet{}
	return json.Unmarshal(b, p)
}

func (j jsonSerializerImpl) Size(p common.Packet) int {
	b, err := json.Marshal(p)
	if err != nil {
		return 0
	}
	return len(b)
}
