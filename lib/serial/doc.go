// Package serial implements wraparound-safe arithmetic for bounded sequence
// numbers (RFC 1982 style serial number arithmetic).
//
// Sequence numbers live in a space of 2^Bits values. Two numbers are never
// compared with plain integer ordering; instead the unsigned distance between
// them is interpreted as a signed value relative to half the space. As long
// as the true distance between two numbers is smaller than Half, numbers that
// wrapped around still order correctly.
//
// Key Components:
//
//   - Number: a sequence number reduced modulo 2^Bits
//   - Add, Distance, Diff: the arithmetic primitives
//   - Compare, Less, Range: ordering helpers built on the primitives
//
// Every other package of dNet orders sequences exclusively through this package.
package serial
