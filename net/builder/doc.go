/*
Package builder batches outgoing messages of one channel into size-bounded packets.

A Builder keeps one active reliable and one active unreliable packet. Add appends
a message to the matching packet as long as the serialized packet stays within
the limit. When the next message would exceed it, the active packet is flushed
first: it is stamped with a fresh sequence number and handed to the emit
callback together with its serialized bytes.

A reliable message that does not fit even into an empty packet is split into a
FragmentInitial packet followed by FragmentSegment packets, each taking its own
reliable sequence. The active reliable packet is flushed before the pieces so
that sequence order equals enqueue order. Unreliable messages are never
fragmented; Add rejects them with ErrMessageTooLarge.

Sizes are measured with the channel's serializer, so the limit holds for the
binary, JSON and CBOR encodings alike. While a packet is accumulating its
sequence is the largest serial number, an upper bound for the stamped value.
*/
package builder
