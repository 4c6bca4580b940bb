// Package sent provides the Sent Packet Tracker: a store of outgoing packets
// keyed by sequence number, each with a countdown measured in ticks.
//
// Every call to Tick advances the clock by one. Entries whose countdown
// reaches zero are removed and reported through the expiry callback, in
// deadline order. What happens to an expired entry (resend, give up) is the
// caller's decision. The tracker only does the bookkeeping.
//
// Internally the countdowns are stored as absolute deadlines in a map-heap,
// a binary heap combined with a hash map. This keeps Tick proportional to the
// number of expiring entries instead of the number of live ones, while
// removal on acknowledgement stays O(log n) by key.
package sent
