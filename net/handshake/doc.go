/*
Package handshake implements the client and server state machines that
establish connections.

Every handshake walks the same states:

	INITIAL ──► WAITING_FOR_HELLO ──► CONNECTED ──► DISCONNECTED
	                    │                                ▲
	                    └────────────────────────────────┘

Any other transition is a programming error and panics.

Client: Start sends a Hello carrying the password and moves to
WAITING_FOR_HELLO. The Hello is resent every Config.HelloRetry until
Config.MaxHelloAttempts Hellos went unanswered for a full interval each, then
the client gives up with a ConnectionTimedOut event. An accepting
HelloResponse creates the Connection, a refusing one ends in DISCONNECTED with
a ConnectionRefused event that carries the server's reason. Connection
packets that arrive before the handshake finished are reported as unexpected
and ignored.

Server: every Hello starts a session in WAITING_FOR_HELLO. The credentials are
compared in constant time. On success the session draws an unpredictable
connection id from an idpool.IPool, creates the Connection and answers with
the id, on failure it answers with a reason and keeps no state. A repeated
Hello from an address that is already connected is answered with the same id.
Later packets are routed by connection id. Packets for unknown ids or from an
address other than the connection's are dropped.

Both machines are driven by Tick and are not thread-safe. Events produced
during a tick are buffered and read with Events. The server's connection table
is a concurrent map, so a metrics reporter may count connections from another
goroutine.
*/
package handshake
