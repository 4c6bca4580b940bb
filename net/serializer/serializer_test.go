package serializer

import (
	"reflect"
	"runtime"
	"testing"

	"github.com/ValentinKolb/dNet/lib/serial"
	"github.com/ValentinKolb/dNet/net/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IPacketSerializer{
	"Binary": NewBinarySerializer,
	"JSON":   NewJSONSerializer,
	"CBOR":   NewCBORSerializer,
}

// testPackets creates one packet per variant with the relevant fields filled
func testPackets() []common.Packet {
	return []common.Packet{
		*common.NewHello([]byte("secret")),
		*common.NewHelloOk(0xdeadbeef),
		*common.NewHelloError("bad credentials"),
		{
			Type:         common.PktTDataReliable,
			ConnectionID: 42,
			Channel:      3,
			Sequence:     serial.Max,
			Messages: []common.Message{
				{ID: 1, Type: 7, Payload: []byte("first")},
				{ID: 2, Type: 8},
			},
		},
		{
			Type:         common.PktTDataUnreliable,
			ConnectionID: 42,
			Sequence:     12345,
			Messages:     []common.Message{{ID: 9, Type: 1, Payload: []byte{0, 1, 2}}},
		},
		{
			Type:          common.PktTFragmentInitial,
			ConnectionID:  42,
			Channel:       1,
			Sequence:      77,
			FragmentID:    5,
			FragmentCount: 3,
			TotalSize:     3000,
			MessageID:     99,
			MessageType:   4,
			Chunk:         []byte("chunk-zero"),
		},
		{
			Type:          common.PktTFragmentSegment,
			ConnectionID:  42,
			Channel:       1,
			Sequence:      78,
			FragmentID:    5,
			FragmentIndex: 2,
			Chunk:         []byte("chunk-two"),
		},
		*common.NewAck(42, 2, 10, 100, 120, []serial.Range{{From: 101, To: 104}, {From: 110, To: 110}}),
		*common.NewAck(42, 0, 11, 5, 5, nil),
		*common.NewPing(42, 1000),
		*common.NewPong(42, 1000),
		*common.NewDisconnect(42),
	}
}

// TestSerializerRoundTrip tests that packets can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			s := factory()

			for i, pkt := range testPackets() {
				data, err := s.Serialize(pkt)
				if err != nil {
					t.Errorf("Failed to serialize packet %d (%s): %v", i, pkt.Type, err)
					continue
				}
				if got := s.Size(pkt); got != len(data) {
					t.Errorf("Size() of packet %d (%s) = %d, serialized length %d", i, pkt.Type, got, len(data))
				}

				var result common.Packet
				if err := s.Deserialize(data, &result); err != nil {
					t.Errorf("Failed to deserialize packet %d (%s): %v", i, pkt.Type, err)
					continue
				}

				if !reflect.DeepEqual(pkt, result) {
					t.Errorf("Packet %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v", i, pkt, result)
				}
			}
		})
	}
}

// TestBinaryMalformed tests that truncated and corrupted input is rejected without panicking
func TestBinaryMalformed(t *testing.T) {
	s := NewBinarySerializer()

	for i, pkt := range testPackets() {
		data, err := s.Serialize(pkt)
		if err != nil {
			t.Fatal(err)
		}
		for cut := 0; cut < len(data); cut++ {
			var result common.Packet
			if err := s.Deserialize(data[:cut], &result); err == nil {
				t.Errorf("packet %d (%s) truncated to %d bytes should fail", i, pkt.Type, cut)
			}
		}

		var result common.Packet
		if err := s.Deserialize(append(data, 0xff), &result); err == nil {
			t.Errorf("packet %d (%s) with trailing garbage should fail", i, pkt.Type)
		}
	}

	var result common.Packet
	if err := s.Deserialize([]byte{0xee, 1, 2, 3}, &result); err == nil {
		t.Error("unknown packet type should fail")
	}
	if _, err := s.Serialize(common.Packet{}); err == nil {
		t.Error("serializing the unknown type should fail")
	}
}

// TestBinaryDeclaredCountBounded tests that a declared message count larger than the body
// is rejected before memory for the messages is reserved
func TestBinaryDeclaredCountBounded(t *testing.T) {
	s := NewBinarySerializer()
	for _, pt := range []common.PacketType{common.PktTDataReliable, common.PktTDataUnreliable} {
		// type, connection id, channel, sequence, count 65535, no messages
		data := []byte{byte(pt), 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}

		var before, after runtime.MemStats
		runtime.GC()
		runtime.ReadMemStats(&before)
		for i := 0; i < 10; i++ {
			var result common.Packet
			if err := s.Deserialize(data, &result); err == nil {
				t.Fatalf("%s with 65535 declared messages and no body should fail", pt)
			}
		}
		runtime.ReadMemStats(&after)

		// a single reservation for 65535 messages would be about 2 MB
		if grown := after.TotalAlloc - before.TotalAlloc; grown > 256*1024 {
			t.Errorf("%s: decoding 10 short datagrams allocated %d bytes", pt, grown)
		}
	}
}

// TestBinaryHeaderLayout tests the position of the connection-class header fields
func TestBinaryHeaderLayout(t *testing.T) {
	data, err := NewBinarySerializer().Serialize(*common.NewPing(0x01020304, serial.New(0x0a0b0c)))
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{byte(common.PktTPing), 1, 2, 3, 4, 0, 0x0a, 0x0b, 0x0c}
	if !reflect.DeepEqual(data, want) {
		t.Errorf("expected %x, got %x", want, data)
	}
}

// TestNew tests serializer lookup by name
func TestNew(t *testing.T) {
	for _, name := range []string{"binary", "json", "cbor"} {
		if _, err := New(name); err != nil {
			t.Errorf("New(%q) failed: %v", name, err)
		}
	}
	if _, err := New("gob"); err == nil {
		t.Error("New(\"gob\") should fail")
	}
}
