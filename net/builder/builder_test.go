package builder

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ValentinKolb/dNet/lib/fragment"
	"github.com/ValentinKolb/dNet/lib/serial"
	"github.com/ValentinKolb/dNet/lib/window"
	"github.com/ValentinKolb/dNet/net/common"
	"github.com/ValentinKolb/dNet/net/sequence"
	"github.com/ValentinKolb/dNet/net/serializer"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() serializer.IPacketSerializer{
	"Binary": serializer.NewBinarySerializer,
	"JSON":   serializer.NewJSONSerializer,
	"CBOR":   serializer.NewCBORSerializer,
}

type emitted struct {
	packet *common.Packet
	raw    []byte
}

func newTestBuilder(t *testing.T, s serializer.IPacketSerializer, limit int) (*Builder, *[]emitted) {
	t.Helper()
	out := &[]emitted{}
	b, err := New(Options{
		ConnectionID:     7,
		Channel:          1,
		Limit:            limit,
		MaxMessageSize:   1 << 16,
		MaxFragmentCount: 256,
		Serializer:       s,
		Sequences:        sequence.NewTracker(1024),
		Emit: func(p *common.Packet, raw []byte) {
			*out = append(*out, emitted{packet: p, raw: raw})
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b, out
}

func payload(n int, seed byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = seed + byte(i)
	}
	return p
}

// TestBuilderRespectsLimit tests that no emitted packet exceeds the limit for any serializer
func TestBuilderRespectsLimit(t *testing.T) {
	const limit = 512
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			b, out := newTestBuilder(t, factory(), limit)

			sizes := []int{0, 10, 100, 200, 300, 1000, 5000, 50}
			for i, n := range sizes {
				if _, err := b.Add(common.Reliable, 1, payload(n, byte(i))); err != nil {
					t.Fatalf("Add reliable %d bytes: %v", n, err)
				}
				if n < 300 {
					if _, err := b.Add(common.Unreliable, 2, payload(n, byte(i))); err != nil {
						t.Fatalf("Add unreliable %d bytes: %v", n, err)
					}
				}
			}
			if err := b.Flush(); err != nil {
				t.Fatalf("Flush failed: %v", err)
			}

			if len(*out) == 0 {
				t.Fatal("nothing emitted")
			}
			for _, e := range *out {
				if len(e.raw) > limit {
					t.Errorf("%s seq %d is %d bytes, limit %d", e.packet.Type, e.packet.Sequence, len(e.raw), limit)
				}
			}
			if b.Pending() != 0 {
				t.Errorf("expected nothing pending after flush, got %d", b.Pending())
			}
		})
	}
}

// TestBuilderFlushesBeforeOverflow tests that a message that does not fit flushes the active packet first
func TestBuilderFlushesBeforeOverflow(t *testing.T) {
	s := serializer.NewBinarySerializer()

	// room for exactly two 40 byte messages
	probe := common.Packet{Type: common.PktTDataReliable, Messages: []common.Message{
		{Payload: make([]byte, 40)}, {Payload: make([]byte, 40)},
	}}
	limit := s.Size(probe)

	b, out := newTestBuilder(t, s, limit)
	for i := 0; i < 2; i++ {
		if _, err := b.Add(common.Reliable, 1, payload(40, 0)); err != nil {
			t.Fatal(err)
		}
	}
	if len(*out) != 0 {
		t.Fatalf("expected no packet yet, got %d", len(*out))
	}

	id, err := b.Add(common.Reliable, 1, payload(40, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(*out) != 1 {
		t.Fatalf("expected one flushed packet, got %d", len(*out))
	}
	first := (*out)[0].packet
	if len(first.Messages) != 2 || first.Sequence != 0 {
		t.Errorf("unexpected flushed packet %s with %d messages", first, len(first.Messages))
	}
	if id != 2 || b.Pending() != 1 {
		t.Errorf("expected message 2 pending alone, got id %d pending %d", id, b.Pending())
	}

	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	if got := (*out)[1].packet.Sequence; got != 1 {
		t.Errorf("expected second packet at seq 1, got %d", got)
	}
}

// TestBuilderSeparateSequenceSpaces tests that reliable and unreliable packets count independently
func TestBuilderSeparateSequenceSpaces(t *testing.T) {
	b, out := newTestBuilder(t, serializer.NewBinarySerializer(), 512)

	for i := 0; i < 3; i++ {
		if _, err := b.Add(common.Unreliable, 1, []byte("u")); err != nil {
			t.Fatal(err)
		}
		if _, err := b.Add(common.Reliable, 1, []byte("r")); err != nil {
			t.Fatal(err)
		}
		if err := b.Flush(); err != nil {
			t.Fatal(err)
		}
	}

	var rel, unrel []serial.Number
	for _, e := range *out {
		if e.packet.Type == common.PktTDataReliable {
			rel = append(rel, e.packet.Sequence)
		} else {
			unrel = append(unrel, e.packet.Sequence)
		}
	}
	for i := 0; i < 3; i++ {
		if rel[i] != serial.Number(i) || unrel[i] != serial.Number(i) {
			t.Fatalf("expected sequences 0..2 in both classes, got %v and %v", rel, unrel)
		}
	}
}

// TestBuilderUnreliableTooLarge tests that an oversized unreliable message is rejected
func TestBuilderUnreliableTooLarge(t *testing.T) {
	b, out := newTestBuilder(t, serializer.NewBinarySerializer(), 128)

	if _, err := b.Add(common.Unreliable, 1, []byte("small")); err != nil {
		t.Fatal(err)
	}
	_, err := b.Add(common.Unreliable, 1, payload(500, 0))
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
	// the small message was flushed before the attempt
	if len(*out) != 1 || len((*out)[0].packet.Messages) != 1 {
		t.Errorf("expected the small message to be flushed, got %d packets", len(*out))
	}
}

// TestBuilderMessageLimits tests the message size and fragment count limits
func TestBuilderMessageLimits(t *testing.T) {
	b, out := newTestBuilder(t, serializer.NewBinarySerializer(), 128)

	if _, err := b.Add(common.Reliable, 1, payload(1<<16+1, 0)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected size limit error, got %v", err)
	}
	// 256 fragments of at most 128 bytes cannot carry 60000 bytes
	if _, err := b.Add(common.Reliable, 1, payload(60000, 0)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected fragment count error, got %v", err)
	}
	if len(*out) != 0 {
		t.Errorf("rejected messages emitted %d packets", len(*out))
	}
}

// TestBuilderRejectionKeepsMessageID tests that rejected messages do not consume message ids
func TestBuilderRejectionKeepsMessageID(t *testing.T) {
	b, _ := newTestBuilder(t, serializer.NewBinarySerializer(), 128)

	first, err := b.Add(common.Reliable, 1, []byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	rejected := [][]byte{payload(1<<16+1, 0), payload(60000, 0)}
	for _, p := range rejected {
		if _, err := b.Add(common.Reliable, 1, p); !errors.Is(err, ErrMessageTooLarge) {
			t.Fatalf("expected ErrMessageTooLarge, got %v", err)
		}
	}
	if _, err := b.Add(common.Unreliable, 1, payload(500, 0)); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}

	second, err := b.Add(common.Unreliable, 1, []byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	third, err := b.Add(common.Reliable, 1, payload(1000, 0)) // fragmented
	if err != nil {
		t.Fatal(err)
	}
	fourth, err := b.Add(common.Reliable, 1, []byte("c"))
	if err != nil {
		t.Fatal(err)
	}
	if second != first+1 || third != first+2 || fourth != first+3 {
		t.Errorf("expected consecutive ids from %d, got %d %d %d", first, second, third, fourth)
	}
}

// TestBuilderLimitTooSmall tests that New rejects a limit below the packet header
func TestBuilderLimitTooSmall(t *testing.T) {
	_, err := New(Options{
		Limit:      4,
		Serializer: serializer.NewBinarySerializer(),
		Sequences:  sequence.NewTracker(16),
		Emit:       func(*common.Packet, []byte) {},
	})
	if !errors.Is(err, ErrLimitTooSmall) {
		t.Errorf("expected ErrLimitTooSmall, got %v", err)
	}
}

// TestBuilderFragmentRoundTrip tests that fragmented messages reassemble in order on the receiving side
func TestBuilderFragmentRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			s := factory()
			b, out := newTestBuilder(t, s, 512)

			sent := [][]byte{
				payload(20, 1),
				payload(3000, 2),
				payload(30, 3),
				payload(1500, 4),
			}
			for _, p := range sent {
				if _, err := b.Add(common.Reliable, 5, p); err != nil {
					t.Fatalf("Add %d bytes: %v", len(p), err)
				}
			}
			if err := b.Flush(); err != nil {
				t.Fatal(err)
			}

			var fragments int
			for _, e := range *out {
				if e.packet.Type == common.PktTFragmentInitial {
					fragments++
				}
			}
			if fragments != 2 {
				t.Errorf("expected 2 fragmented messages, got %d", fragments)
			}

			var delivered [][]byte
			rx := sequence.NewReliableTracker(7, 1,
				window.NewReliable(serial.Max, 1024),
				fragment.NewTracker(256, 1<<16),
				nil)

			// deliver the datagrams in reverse order, segments that arrive
			// before their initial piece are rejected and sent again
			var retry []*common.Packet
			for i := len(*out) - 1; i >= 0; i-- {
				p := &common.Packet{}
				if err := s.Deserialize((*out)[i].raw, p); err != nil {
					t.Fatalf("Deserialize failed: %v", err)
				}
				if err := rx.Receive(p); err != nil {
					if !errors.Is(err, sequence.ErrFragmentProblem) {
						t.Fatalf("Receive %s: %v", p.String(), err)
					}
					retry = append(retry, p)
				}
			}
			for _, p := range retry {
				if err := rx.Receive(p); err != nil {
					t.Fatalf("retransmitted %s: %v", p.String(), err)
				}
			}
			rx.Poll(func(_ serial.Number, m common.Message) {
				delivered = append(delivered, m.Payload)
			})

			if len(delivered) != len(sent) {
				t.Fatalf("expected %d messages, got %d", len(sent), len(delivered))
			}
			for i := range sent {
				if !bytes.Equal(delivered[i], sent[i]) {
					t.Errorf("message %d differs after reassembly (%d vs %d bytes)", i, len(delivered[i]), len(sent[i]))
				}
			}
		})
	}
}

// TestBuilderEnqueuedEvents tests that every accepted message is reported once
func TestBuilderEnqueuedEvents(t *testing.T) {
	var events []common.Event
	b, err := New(Options{
		Limit:      512,
		Serializer: serializer.NewBinarySerializer(),
		Sequences:  sequence.NewTracker(16),
		Emit:       func(*common.Packet, []byte) {},
		Sink:       func(e common.Event) { events = append(events, e) },
	})
	if err != nil {
		t.Fatal(err)
	}

	_, _ = b.Add(common.Reliable, 1, []byte("a"))
	_, _ = b.Add(common.Unreliable, 1, []byte("b"))
	_, _ = b.Add(common.Unreliable, 1, payload(5000, 0)) // rejected

	if len(events) != 2 {
		t.Fatalf("expected 2 enqueued events, got %d", len(events))
	}
	if events[0].Reliability != common.Reliable || events[1].Reliability != common.Unreliable {
		t.Errorf("unexpected reliabilities %s, %s", events[0].Reliability, events[1].Reliability)
	}
}
