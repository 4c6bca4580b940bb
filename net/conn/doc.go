/*
Package conn implements an established connection and its channels.

A Connection is created by a handshake machine once both sides agreed on a
connection id. It owns up to Config.MaxChannels channels, each with its own
packet builder, sequence tracker, reliable sequence tracker and sent packet
tracker. Channels are created on first use by either side.

Nothing happens outside Tick. Send only enqueues into a builder and Receive
only queues a decoded packet. One Tick then:

 1. ages the sent packets of every channel and retransmits the expired ones,
 2. sends an acknowledgement for channels that received reliable data,
 3. flushes partial packets and sends a keepalive ping when due,
 4. transmits the send queue to the remote address,
 5. drains the receive queue, delivering messages in order,
 6. closes the connection if the peer was silent for too long.

Everything observable is reported through the event sink given at creation:
deliveries, drops, duplicates, retransmissions and the final close event.
A connection reports exactly one terminal event.

A Connection is not thread-safe. The owner calls Send, Receive and Tick from
one goroutine.
*/
package conn
