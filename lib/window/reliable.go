package window

import (
	"fmt"
	"sort"

	"github.com/ValentinKolb/dNet/lib/serial"
)

// Reliable is the receiver window for reliable sequences.
//
// All received sequences are stored as forward offsets from the low-water
// mark, which keeps them sortable with plain integer comparison while the
// window never spans more than the horizon.
type Reliable struct {
	horizon    uint32
	lowWater   serial.Number // everything up to and including this was received and collapsed
	contiguous serial.Number // received-before-missing pointer
	received   []uint32      // sorted offsets from lowWater, all > 0
	missing    []serial.Range
}

// NewReliable creates a reliable window whose low-water mark is lowWater, meaning
// that lowWater and everything before it counts as already received.
// A fresh connection that starts sending at 0 uses serial.Max.
func NewReliable(lowWater serial.Number, horizon uint32) *Reliable {
	if horizon == 0 || horizon >= serial.Half {
		panic(fmt.Sprintf("invalid reliable window horizon %d", horizon))
	}
	return &Reliable{
		horizon:    horizon,
		lowWater:   lowWater,
		contiguous: lowWater,
	}
}

// --------------------------------------------------------------------------
// Receive side
// --------------------------------------------------------------------------

// Check reports whether r would be accepted by Receive without changing the window
func (w *Reliable) Check(r serial.Number) error {
	off := serial.Distance(w.lowWater, r)
	if off == 0 || off >= serial.Half {
		return ErrTooOld
	}
	if off > w.horizon {
		return fmt.Errorf("%w: %d is %d ahead of %d (horizon %d)", ErrOutsideHorizon, r, off, w.lowWater, w.horizon)
	}
	if _, found := w.search(off); found {
		return ErrDuplicate
	}
	return nil
}

// Receive marks r as received and recomputes the missing ranges
func (w *Reliable) Receive(r serial.Number) error {
	if err := w.Check(r); err != nil {
		return err
	}

	off := serial.Distance(w.lowWater, r)
	i, _ := w.search(off)
	w.received = append(w.received, 0)
	copy(w.received[i+1:], w.received[i:])
	w.received[i] = off

	// advance the received-before-missing pointer
	next := serial.Distance(w.lowWater, w.contiguous) + 1
	for j := i; j < len(w.received) && w.received[j] == next; j++ {
		next++
	}
	w.contiguous = w.lowWater.Add(int(next - 1))

	w.recomputeMissing()
	return nil
}

// Reset collapses the window: the low-water mark advances to the highest
// contiguously received sequence and every offset behind it is forgotten.
func (w *Reliable) Reset() {
	shift := serial.Distance(w.lowWater, w.contiguous)
	if shift == 0 {
		return
	}

	i := sort.Search(len(w.received), func(i int) bool { return w.received[i] > shift })
	remaining := w.received[i:]
	kept := make([]uint32, len(remaining))
	for j, off := range remaining {
		kept[j] = off - shift
	}
	w.received = kept
	w.lowWater = w.contiguous
}

// --------------------------------------------------------------------------
// Read-only views
// --------------------------------------------------------------------------

// LowWaterMark returns the highest sequence for which all earlier sequences were received
func (w *Reliable) LowWaterMark() serial.Number {
	return w.contiguous
}

// Base returns the collapsed low-water mark (only advanced by Reset)
func (w *Reliable) Base() serial.Number {
	return w.lowWater
}

// Highest returns the highest sequence received so far, or the low-water mark
// if nothing was received since the last reset
func (w *Reliable) Highest() serial.Number {
	if len(w.received) == 0 {
		return w.contiguous
	}
	return w.lowWater.Add(int(w.received[len(w.received)-1]))
}

// Received returns the sequences received since the last Reset in ascending order
func (w *Reliable) Received() []serial.Number {
	out := make([]serial.Number, len(w.received))
	for i, off := range w.received {
		out[i] = w.lowWater.Add(int(off))
	}
	return out
}

// Missed returns the gaps between the low-water mark and the highest received sequence
func (w *Reliable) Missed() []serial.Range {
	out := make([]serial.Range, len(w.missing))
	copy(out, w.missing)
	return out
}

// Contains reports whether r was received, including everything behind the low-water mark
func (w *Reliable) Contains(r serial.Number) bool {
	off := serial.Distance(w.lowWater, r)
	if off == 0 || off >= serial.Half {
		return true
	}
	_, found := w.search(off)
	return found
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// search returns the insert position of off and whether it is already present
func (w *Reliable) search(off uint32) (int, bool) {
	i := sort.Search(len(w.received), func(i int) bool { return w.received[i] >= off })
	return i, i < len(w.received) && w.received[i] == off
}

// recomputeMissing rebuilds the gap list between the contiguous pointer and the highest offset
func (w *Reliable) recomputeMissing() {
	w.missing = w.missing[:0]
	prev := serial.Distance(w.lowWater, w.contiguous)
	for _, off := range w.received {
		if off <= prev {
			continue
		}
		if off > prev+1 {
			w.missing = append(w.missing, serial.Range{
				From: w.lowWater.Add(int(prev + 1)),
				To:   w.lowWater.Add(int(off - 1)),
			})
		}
		prev = off
	}
}
