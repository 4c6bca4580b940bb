package serializer

import "github.com/ValentinKolb/dNet/net/common"

// IPacketSerializer is the interface for all packet serializers
type IPacketSerializer interface {
	// Serialize serializes a Packet into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(p common.Packet) ([]byte, error)
	// Deserialize deserializes a byte array into a Packet
	// It takes a byte array and a pointer to a Packet as parameters
	// It returns an error if any
	Deserialize(b []byte, p *common.Packet) error
	// Size returns the length Serialize would produce for p.
	// The packet builder uses it to keep packets below the size limit.
	Size(p common.Packet) int
}

// New returns the serializer registered under name (binary, json, cbor)
func New(name string) (IPacketSerializer, error) {
	switch name {
	case "binary":
		return NewBinarySerializer(), nil
	case "json":
		return NewJSONSerializer(), nil
	case "cbor":
		return NewCBORSerializer(), nil
	default:
		return nil, &UnknownSerializerError{Name: name}
	}
}

// UnknownSerializerError is returned by New for an unsupported name
type UnknownSerializerError struct {
	Name string
}

func (e *UnknownSerializerError) Error() string {
	return "invalid serializer " + e.Name + " (expected one of binary, json, cbor)"
}
