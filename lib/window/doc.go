// Package window provides receiver-side bookkeeping of which sequence numbers
// have arrived on a channel.
//
// Two windows exist, one per delivery class:
//
//   - Reliable: tracks the received set above a low-water mark, the highest
//     contiguously received sequence and the missing ranges in between. A
//     configurable horizon bounds how far ahead of the low-water mark a
//     sequence may be, which bounds memory.
//
//   - Unreliable: tracks the newest sequence seen and a per-tick baseline.
//     Packets older than or equal to the baseline are dropped, packets seen
//     twice within the same tick are reported as duplicates.
//
// Neither window is safe for concurrent use. They are driven by the tick of
// the connection that owns them.
package window
