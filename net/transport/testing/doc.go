// Package testing provides a standardised test suite for datagram sockets
// that satisfy the transport.ISocket interface.
//
// The suite checks the contract the connection layer relies on: datagrams
// travel both ways with the sender's address, Poll never blocks, the MTU is
// enforced and a closed socket rejects every operation.
//
// Example usage:
//
//	factory := func(t *testing.T) (server, client transport.ISocket) {
//		network := mem.NewNetwork()
//		server, _ = network.Listen("server")
//		client, _ = network.Dial("server")
//		return server, client
//	}
//
//	transporttesting.RunSocketTests(t, "Memory", factory)
package testing
