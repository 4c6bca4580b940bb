// Package sequence issues and tracks sequence numbers for one channel.
//
// Tracker is the Sequence Number Tracker. It owns the send-side counters
// (next reliable, next unreliable, next message id, next fragment id, next
// ack) and the two receiver windows, and exposes predicates that tell
// whether an incoming sequence should be considered at all.
//
// ReliableTracker is the Reliable Sequence Tracker. It combines the reliable
// window with a fragment tracker that shares the same sequence space and
// turns arriving reliable packets into gap-free, in-order deliveries:
//
//   - Receive rejects duplicates and sequences behind the low-water mark,
//     routes fragment pieces to the fragment tracker and stores everything
//     else by sequence.
//   - Poll reports missing ranges and incomplete fragments, then delivers the
//     longest contiguous prefix. An incomplete fragment blocks every sequence
//     at and after it, ordering beats partial delivery.
//
// Protocol problems are reported as events and returned as errors. They never
// stop processing of the next packet.
package sequence
