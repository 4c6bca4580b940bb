// Package serializer converts packets to and from bytes.
//
// All serializers implement IPacketSerializer. Besides Serialize and
// Deserialize they report the exact serialized Size of a packet, which the
// packet builder relies on to never exceed the transport's packet limit.
//
// Implementations:
//
//   - binary: the compact big endian wire format with 24 bit sequence numbers.
//     Every length is checked on decode and malformed input returns a
//     "data too short for X" error instead of panicking.
//   - json: encoding/json over the packet struct, handy for debugging.
//   - cbor: deterministic CBOR via fxamacker/cbor.
//
// Both peers of a connection must use the same serializer.
package serializer
