package serializer

import (
	"testing"

	"github.com/ValentinKolb/dNet/net/common"
)

// benchPacket is a typical reliable packet with a handful of small messages
func benchPacket() common.Packet {
	msgs := make([]common.Message, 8)
	for i := range msgs {
		msgs[i] = common.Message{ID: uint32(i), Type: 3, Payload: make([]byte, 64)}
	}
	return common.Packet{
		Type:         common.PktTDataReliable,
		ConnectionID: 1234,
		Channel:      1,
		Sequence:     99,
		Messages:     msgs,
	}
}

// BenchmarkSerialize benchmarks Serialize for each serializer
func BenchmarkSerialize(b *testing.B) {
	pkt := benchPacket()
	for name, factory := range testSerializers {
		s := factory()
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := s.Serialize(pkt); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkDeserialize benchmarks Deserialize for each serializer
func BenchmarkDeserialize(b *testing.B) {
	pkt := benchPacket()
	for name, factory := range testSerializers {
		s := factory()
		data, err := s.Serialize(pkt)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(name, func(b *testing.B) {
			var out common.Packet
			for i := 0; i < b.N; i++ {
				if err := s.Deserialize(data, &out); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
