package serial

import "fmt"

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// Bits is the width of a sequence number on the wire
	Bits = 24
	// Modulus is the size of the sequence number space
	Modulus uint32 = 1 << Bits
	// Half is the largest distance that still orders unambiguously
	Half uint32 = Modulus >> 1
	// mask reduces any uint32 into the sequence space
	mask = Modulus - 1
)

// Max is the largest representable sequence number
const Max Number = Number(mask)

// --------------------------------------------------------------------------
// Number
// --------------------------------------------------------------------------

// Number is a sequence number modulo 2^Bits
type Number uint32

// New reduces v into the sequence space
func New(v uint32) Number {
	return Number(v & mask)
}

// Add returns (a + delta) mod 2^Bits. Negative deltas step backwards.
func (a Number) Add(delta int) Number {
	d := uint32(int64(delta) & int64(mask))
	return Number((uint32(a) + d) & mask)
}

// Next returns a + 1
func (a Number) Next() Number {
	return a.Add(1)
}

// Prev returns a - 1
func (a Number) Prev() Number {
	return a.Add(-1)
}

// Uint32 returns the raw value
func (a Number) Uint32() uint32 {
	return uint32(a)
}

func (a Number) String() string {
	return fmt.Sprintf("%d", uint32(a))
}

// --------------------------------------------------------------------------
// Arithmetic
// --------------------------------------------------------------------------

// Distance returns the unsigned forward distance (b - a) mod 2^Bits
func Distance(a, b Number) uint32 {
	return (uint32(b) - uint32(a)) & mask
}

// Diff returns the signed distance from a to b. The result is positive when b
// is ahead of a. A distance of exactly Half is resolved by raw value so that
// Diff(a, b) == -Diff(b, a) holds for every pair.
func Diff(a, b Number) int32 {
	d := Distance(a, b)
	switch {
	case d < Half:
		return int32(d)
	case d > Half:
		return int32(d) - int32(Modulus)
	default:
		if a < b {
			return int32(Half)
		}
		return -int32(Half)
	}
}

// Compare returns -1 if a is before b, 0 if they are equal and +1 if a is after b
func Compare(a, b Number) int {
	d := Diff(a, b)
	switch {
	case d > 0:
		return -1
	case d < 0:
		return 1
	default:
		return 0
	}
}

// Less reports whether a is before b
func Less(a, b Number) bool {
	return Compare(a, b) < 0
}

// LessOrEqual reports whether a is before or equal to b
func LessOrEqual(a, b Number) bool {
	return Compare(a, b) <= 0
}

// Max2 returns the later of a and b
func Max2(a, b Number) Number {
	if Less(a, b) {
		return b
	}
	return a
}

// --------------------------------------------------------------------------
// Range
// --------------------------------------------------------------------------

// Range is an inclusive span of sequence numbers [From, To]
type Range struct {
	From Number `json:"from"`
	To   Number `json:"to"`
}

// Len returns how many sequence numbers the range covers
func (r Range) Len() uint32 {
	return Distance(r.From, r.To) + 1
}

// Contains reports whether s lies inside the range
func (r Range) Contains(s Number) bool {
	return LessOrEqual(r.From, s) && LessOrEqual(s, r.To)
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", uint32(r.From), uint32(r.To))
}
