package handshake

import (
	"errors"
	"net"
	"testing"

	"github.com/ValentinKolb/dNet/lib/idpool"
	"github.com/ValentinKolb/dNet/net/common"
	"github.com/ValentinKolb/dNet/net/serializer"
	"github.com/ValentinKolb/dNet/net/transport"
	"github.com/ValentinKolb/dNet/net/transport/mem"
)

const testPassword = "hunter2"

// collector drains and keeps the events of a machine
type collector struct {
	events []common.Event
}

func (c *collector) sink(e common.Event) {
	c.events = append(c.events, e)
}

func (c *collector) count(kind common.EventKind) int {
	n := 0
	for _, e := range c.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (c *collector) find(kind common.EventKind) (common.Event, bool) {
	for _, e := range c.events {
		if e.Kind == kind {
			return e, true
		}
	}
	return common.Event{}, false
}

type fixture struct {
	network      *mem.Network
	server       *Server
	serverEvents *collector
	pool         idpool.IPool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		network:      mem.NewNetwork(),
		serverEvents: &collector{},
		pool:         idpool.NewRandomPool(),
	}
	socket, err := f.network.Listen("server")
	if err != nil {
		t.Fatal(err)
	}
	f.server, err = NewServer(ServerOptions{
		Config:   common.DefaultConfig(),
		Password: testPassword,
		Socket:   socket,
		Pool:     f.pool,
		OnEvent:  f.serverEvents.sink,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return f
}

func (f *fixture) client(t *testing.T, target, password string) (*Client, *collector) {
	t.Helper()
	socket, err := f.network.Dial(target)
	if err != nil {
		t.Fatal(err)
	}
	events := &collector{}
	c, err := NewClient(ClientOptions{
		Config:   common.DefaultConfig(),
		Password: password,
		Socket:   socket,
		OnEvent:  events.sink,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c, events
}

// run ticks the server and all clients n times
func (f *fixture) run(n int, clients ...*Client) {
	for i := 0; i < n; i++ {
		for _, c := range clients {
			c.Tick()
		}
		f.server.Tick()
	}
}

// TestHandshakeSuccess tests that a valid Hello yields the same id on both sides
func TestHandshakeSuccess(t *testing.T) {
	f := newFixture(t)
	client, events := f.client(t, "server", testPassword)

	if client.State() != StateInitial {
		t.Fatalf("expected INITIAL, got %s", client.State())
	}
	client.Start()
	if client.State() != StateWaitingForHello {
		t.Fatalf("expected WAITING_FOR_HELLO, got %s", client.State())
	}
	f.run(2, client)

	if client.State() != StateConnected {
		t.Fatalf("expected CONNECTED, got %s (reason %q)", client.State(), client.Reason())
	}
	id := client.Connection().ID()
	if id == idpool.None {
		t.Errorf("connection id must not be %d", idpool.None)
	}
	if _, ok := f.server.Connection(id); !ok || f.server.Len() != 1 {
		t.Errorf("server does not know connection %d", id)
	}
	if !f.pool.InUse(id) {
		t.Errorf("id %d not allocated from the pool", id)
	}
	if events.count(common.EvtConnectionCreated) != 1 || f.serverEvents.count(common.EvtConnectionCreated) != 1 {
		t.Errorf("expected one created event per side")
	}
	if client.Attempts() != 1 {
		t.Errorf("expected a single hello, got %d", client.Attempts())
	}
}

// TestHandshakeRefused tests that a wrong password ends with the server's refusal message
func TestHandshakeRefused(t *testing.T) {
	f := newFixture(t)
	client, events := f.client(t, "server", "wrong")

	client.Start()
	f.run(2, client)

	if client.State() != StateDisconnected {
		t.Fatalf("expected DISCONNECTED, got %s", client.State())
	}
	refused, ok := events.find(common.EvtConnectionRefused)
	if !ok {
		t.Fatal("expected a refused event")
	}
	serverRefused, _ := f.serverEvents.find(common.EvtConnectionRefused)
	if refused.Reason != serverRefused.Reason || refused.Reason != ReasonInvalidCredentials {
		t.Errorf("client reason %q, server reason %q", refused.Reason, serverRefused.Reason)
	}
	if client.Reason() != ReasonInvalidCredentials {
		t.Errorf("unexpected client reason %q", client.Reason())
	}
	if f.server.Len() != 0 {
		t.Errorf("refused client left %d connections", f.server.Len())
	}
	if _, err := client.Send(common.Reliable, 0, 1, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

// TestHandshakeTimeout tests that ten unanswered retry intervals disconnect the client
func TestHandshakeTimeout(t *testing.T) {
	f := newFixture(t)
	client, events := f.client(t, "nobody", testPassword)
	cfg := common.DefaultConfig()
	window := cfg.MaxHelloAttempts * cfg.HelloRetryTicks()

	client.Start()
	for i := 0; i < window-1; i++ {
		client.Tick()
	}
	if client.State() != StateWaitingForHello {
		t.Fatalf("gave up too early: %s after %d ticks", client.State(), window-1)
	}

	client.Tick()
	if client.State() != StateDisconnected {
		t.Fatalf("expected DISCONNECTED after %d ticks, got %s", window, client.State())
	}
	if events.count(common.EvtConnectionTimedOut) != 1 {
		t.Errorf("expected one timeout event, got %d", events.count(common.EvtConnectionTimedOut))
	}
	if client.Attempts() != cfg.MaxHelloAttempts {
		t.Errorf("expected %d hellos, got %d", cfg.MaxHelloAttempts, client.Attempts())
	}

	// terminal: further ticks change nothing
	client.Tick()
	if events.count(common.EvtConnectionTimedOut) != 1 {
		t.Errorf("timeout reported twice")
	}
}

// TestUnexpectedBeforeConnected tests that data before the handshake is reported and ignored
func TestUnexpectedBeforeConnected(t *testing.T) {
	network := mem.NewNetwork()
	fake, _ := network.Listen("server")
	socket, _ := network.Dial("server")
	events := &collector{}
	client, err := NewClient(ClientOptions{Config: common.DefaultConfig(), Socket: socket, OnEvent: events.sink})
	if err != nil {
		t.Fatal(err)
	}
	client.Start()

	ser := serializer.NewBinarySerializer()
	raw, _ := ser.Serialize(common.Packet{Type: common.PktTDataReliable, ConnectionID: 5})
	if err := fake.Send(socket.LocalAddr(), raw); err != nil {
		t.Fatal(err)
	}
	client.Tick()

	if client.State() != StateWaitingForHello {
		t.Errorf("expected to keep waiting, got %s", client.State())
	}
	if events.count(common.EvtUnexpected) != 1 {
		t.Errorf("expected an unexpected event")
	}
}

// rawHello sends a Hello from socket and returns the decoded answers
func rawHello(t *testing.T, f *fixture, socket transport.ISocket, password string) []common.Packet {
	t.Helper()
	ser := serializer.NewBinarySerializer()
	raw, _ := ser.Serialize(*common.NewHello([]byte(password)))
	if err := socket.Send(socket.Remote(), raw); err != nil {
		t.Fatal(err)
	}
	f.server.Tick()

	var out []common.Packet
	_ = socket.Poll(func(_ net.Addr, data []byte) {
		var p common.Packet
		if err := ser.Deserialize(data, &p); err != nil {
			t.Fatal(err)
		}
		out = append(out, p)
	})
	return out
}

// TestRepeatedHelloSameID tests that a resent Hello is answered with the existing id
func TestRepeatedHelloSameID(t *testing.T) {
	f := newFixture(t)
	socket, _ := f.network.Dial("server")

	first := rawHello(t, f, socket, testPassword)
	second := rawHello(t, f, socket, testPassword)

	if len(first) != 1 || len(second) != 1 || !first[0].Ok || !second[0].Ok {
		t.Fatalf("expected two accepting answers, got %v and %v", first, second)
	}
	if first[0].ConnectionID != second[0].ConnectionID {
		t.Errorf("ids differ: %d vs %d", first[0].ConnectionID, second[0].ConnectionID)
	}
	if f.server.Len() != 1 {
		t.Errorf("expected one connection, got %d", f.server.Len())
	}
}

// TestServerDropsForeignPackets tests routing of unknown ids and spoofed addresses
func TestServerDropsForeignPackets(t *testing.T) {
	f := newFixture(t)
	socket, _ := f.network.Dial("server")
	id := rawHello(t, f, socket, testPassword)[0].ConnectionID

	ser := serializer.NewBinarySerializer()
	other, _ := f.network.Dial("server")

	spoofed, _ := ser.Serialize(common.Packet{Type: common.PktTDataUnreliable, ConnectionID: id})
	unknown, _ := ser.Serialize(common.Packet{Type: common.PktTDataUnreliable, ConnectionID: id + 1})
	_ = other.Send(other.Remote(), spoofed)
	_ = socket.Send(socket.Remote(), unknown)
	_ = socket.Send(socket.Remote(), []byte{0xff, 0x00})
	f.server.Tick()

	reasons := map[string]bool{}
	for _, e := range f.serverEvents.events {
		if e.Kind == common.EvtDropped {
			reasons[e.Reason] = true
		}
	}
	if !reasons["address mismatch"] || !reasons["unknown connection"] {
		t.Errorf("expected both drop reasons, got %v", reasons)
	}
	if f.serverEvents.count(common.EvtMalformed) != 1 {
		t.Errorf("expected one malformed event")
	}
}

// TestEcho tests a message round trip through server and client
func TestEcho(t *testing.T) {
	f := newFixture(t)
	client, events := f.client(t, "server", testPassword)
	client.Start()
	f.run(2, client)

	if _, err := client.Send(common.Reliable, 0, 7, []byte("ping")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var echoed []byte
	for i := 0; i < 10 && echoed == nil; i++ {
		f.run(1, client)
		for e := range f.server.Events() {
			if e.Kind == common.EvtDelivered {
				if _, err := f.server.Send(e.ConnectionID, e.Reliability, e.Channel, e.Message.Type, e.Message.Payload); err != nil {
					t.Fatalf("echo failed: %v", err)
				}
			}
		}
		for e := range client.Events() {
			if e.Kind == common.EvtDelivered {
				echoed = e.Message.Payload
			}
		}
	}
	if string(echoed) != "ping" {
		t.Errorf("expected the echo, got %q", echoed)
	}
	if events.count(common.EvtDelivered) != 1 {
		t.Errorf("expected one delivery at the client")
	}
}

// TestCloseReleasesID tests that a client disconnect frees the server side id
func TestCloseReleasesID(t *testing.T) {
	f := newFixture(t)
	client, _ := f.client(t, "server", testPassword)
	client.Start()
	f.run(2, client)
	id := client.Connection().ID()

	client.Close()
	if client.State() != StateDisconnected || client.Reason() != "local" {
		t.Fatalf("unexpected client state %s (%q)", client.State(), client.Reason())
	}
	f.server.Tick()

	if f.server.Len() != 0 {
		t.Errorf("expected no connections, got %d", f.server.Len())
	}
	if f.pool.InUse(id) {
		t.Errorf("id %d still allocated", id)
	}
	if _, err := f.server.Send(id, common.Reliable, 0, 1, nil); !errors.Is(err, ErrUnknownConnection) {
		t.Errorf("expected ErrUnknownConnection, got %v", err)
	}
}

// TestServerClose tests that closing the server closes every connection
func TestServerClose(t *testing.T) {
	f := newFixture(t)
	a, _ := f.client(t, "server", testPassword)
	b, _ := f.client(t, "server", testPassword)
	a.Start()
	b.Start()
	f.run(2, a, b)
	if f.server.Len() != 2 {
		t.Fatalf("expected 2 connections, got %d", f.server.Len())
	}

	f.server.Close()
	f.run(1, a, b)

	if f.server.Len() != 0 {
		t.Errorf("expected no connections after close")
	}
	if a.State() != StateDisconnected || b.State() != StateDisconnected {
		t.Errorf("clients should see the disconnect, got %s and %s", a.State(), b.State())
	}
}
