package testing

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/dNet/net/transport"
)

// SocketFactory creates a connected pair: a listening server socket and a
// client socket whose Remote is the server
type SocketFactory func(t *testing.T) (server, client transport.ISocket)

// RunSocketTests runs the conformance suite for an ISocket implementation.
func RunSocketTests(t *testing.T, name string, factory SocketFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("ClientToServer", func(t *testing.T) {
			testClientToServer(t, factory)
		})

		t.Run("ServerReply", func(t *testing.T) {
			testServerReply(t, factory)
		})

		t.Run("PollEmpty", func(t *testing.T) {
			testPollEmpty(t, factory)
		})

		t.Run("MTU", func(t *testing.T) {
			testMTU(t, factory)
		})

		t.Run("Remote", func(t *testing.T) {
			testRemote(t, factory)
		})

		t.Run("Many", func(t *testing.T) {
			testMany(t, factory)
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

type received struct {
	addr net.Addr
	data []byte
}

// collect polls s until want datagrams arrived or the deadline passes
func collect(t *testing.T, s transport.ISocket, want int) []received {
	t.Helper()
	var got []received
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < want && time.Now().Before(deadline) {
		err := s.Poll(func(addr net.Addr, data []byte) {
			got = append(got, received{addr: addr, data: data})
		})
		if err != nil {
			t.Fatalf("Poll failed: %v", err)
		}
		if len(got) < want {
			time.Sleep(time.Millisecond)
		}
	}
	if len(got) < want {
		t.Fatalf("expected %d datagrams, got %d", want, len(got))
	}
	return got
}

func pair(t *testing.T, factory SocketFactory) (transport.ISocket, transport.ISocket) {
	server, client := factory(t)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return server, client
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testClientToServer(t *testing.T, factory SocketFactory) {
	server, client := pair(t, factory)

	if err := client.Send(client.Remote(), []byte("hello")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	got := collect(t, server, 1)
	if !bytes.Equal(got[0].data, []byte("hello")) {
		t.Errorf("expected hello, got %q", got[0].data)
	}
	if got[0].addr == nil {
		t.Errorf("expected a sender address")
	}
}

func testServerReply(t *testing.T, factory SocketFactory) {
	server, client := pair(t, factory)

	if err := client.Send(client.Remote(), []byte("ping")); err != nil {
		t.Fatal(err)
	}
	from := collect(t, server, 1)[0].addr
	if err := server.Send(from, []byte("pong")); err != nil {
		t.Fatalf("reply failed: %v", err)
	}

	got := collect(t, client, 1)
	if !bytes.Equal(got[0].data, []byte("pong")) {
		t.Errorf("expected pong, got %q", got[0].data)
	}
	if got[0].addr.String() != client.Remote().String() {
		t.Errorf("reply from %s, expected %s", got[0].addr, client.Remote())
	}
}

func testPollEmpty(t *testing.T, factory SocketFactory) {
	server, _ := pair(t, factory)

	done := make(chan error, 1)
	go func() {
		done <- server.Poll(func(net.Addr, []byte) {
			t.Errorf("unexpected datagram")
		})
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Poll on empty socket failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Poll blocked on an empty socket")
	}
}

func testMTU(t *testing.T, factory SocketFactory) {
	server, client := pair(t, factory)

	mtu := client.MaximumTransferUnit()
	if mtu <= 0 {
		t.Fatalf("expected positive MTU, got %d", mtu)
	}
	if err := client.Send(client.Remote(), make([]byte, mtu)); err != nil {
		t.Errorf("datagram of exactly MTU bytes rejected: %v", err)
	}
	err := client.Send(client.Remote(), make([]byte, mtu+1))
	if !errors.Is(err, transport.ErrDatagramTooLarge) {
		t.Errorf("expected ErrDatagramTooLarge, got %v", err)
	}

	got := collect(t, server, 1)
	if len(got[0].data) != mtu {
		t.Errorf("expected %d bytes, got %d", mtu, len(got[0].data))
	}
}

func testRemote(t *testing.T, factory SocketFactory) {
	server, client := pair(t, factory)

	if server.Remote() != nil {
		t.Errorf("listening socket has remote %s", server.Remote())
	}
	if client.Remote() == nil {
		t.Errorf("client socket has no remote")
	}
	if server.LocalAddr() == nil || client.LocalAddr() == nil {
		t.Errorf("sockets must report their local address")
	}
}

func testMany(t *testing.T, factory SocketFactory) {
	server, client := pair(t, factory)

	const n = 50
	for i := 0; i < n; i++ {
		if err := client.Send(client.Remote(), []byte(fmt.Sprintf("msg-%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	got := collect(t, server, n)

	seen := make(map[string]bool, n)
	for _, r := range got {
		seen[string(r.data)] = true
	}
	for i := 0; i < n; i++ {
		if !seen[fmt.Sprintf("msg-%d", i)] {
			t.Errorf("msg-%d missing", i)
		}
	}
}

func testClose(t *testing.T, factory SocketFactory) {
	server, client := pair(t, factory)

	if err := client.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := client.Send(server.LocalAddr(), []byte("x")); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("expected ErrClosed from Send, got %v", err)
	}
	if err := client.Poll(func(net.Addr, []byte) {}); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("expected ErrClosed from Poll, got %v", err)
	}
}
