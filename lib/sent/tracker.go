package sent

import (
	"container/heap"
	"iter"
	"sort"

	"github.com/ValentinKolb/dNet/lib/serial"
)

// ExpiryFunc is called for every entry whose countdown reached zero
type ExpiryFunc[T any] func(seq serial.Number, payload T)

// Tracker stores payloads by sequence with a ticks-to-live countdown
type Tracker[T any] struct {
	now       uint64
	payloads  map[serial.Number]T
	deadlines *mapHeap
}

// NewTracker creates an empty tracker
func NewTracker[T any]() *Tracker[T] {
	return &Tracker[T]{
		payloads:  make(map[serial.Number]T),
		deadlines: newMapHeap(),
	}
}

// Add stores payload under seq with the given ticks to live.
// Adding an existing sequence replaces its payload and restarts the countdown.
func (t *Tracker[T]) Add(seq serial.Number, payload T, ticksToLive int) {
	if ticksToLive < 1 {
		ticksToLive = 1
	}
	t.payloads[seq] = payload
	t.deadlines.set(seq, t.now+uint64(ticksToLive))
}

// Remove deletes seq and returns its payload
func (t *Tracker[T]) Remove(seq serial.Number) (T, bool) {
	p, ok := t.payloads[seq]
	if !ok {
		return p, false
	}
	delete(t.payloads, seq)
	t.deadlines.removeByKey(seq)
	return p, true
}

// Get returns the payload for seq
func (t *Tracker[T]) Get(seq serial.Number) (T, bool) {
	p, ok := t.payloads[seq]
	return p, ok
}

// TicksToLive returns the remaining countdown of seq
func (t *Tracker[T]) TicksToLive(seq serial.Number) (int, bool) {
	it, ok := t.deadlines.get(seq)
	if !ok {
		return 0, false
	}
	return int(it.Priority - t.now), true
}

// Tick decrements every countdown by one and reports the entries that reached zero
func (t *Tracker[T]) Tick(expired ExpiryFunc[T]) {
	t.now++
	for {
		it, ok := t.deadlines.peek()
		if !ok || it.Priority > t.now {
			return
		}
		heap.Pop(t.deadlines)
		p := t.payloads[it.Key]
		delete(t.payloads, it.Key)
		if expired != nil {
			expired(it.Key, p)
		}
	}
}

// Len returns the number of live entries
func (t *Tracker[T]) Len() int {
	return len(t.payloads)
}

// Sequences returns all live sequences in serial order
func (t *Tracker[T]) Sequences() []serial.Number {
	seqs := make([]serial.Number, 0, len(t.payloads))
	for s := range t.payloads {
		seqs = append(seqs, s)
	}
	sort.Slice(seqs, func(i, j int) bool { return serial.Less(seqs[i], seqs[j]) })
	return seqs
}

// All iterates the live entries in serial order
func (t *Tracker[T]) All() iter.Seq2[serial.Number, T] {
	return func(yield func(serial.Number, T) bool) {
		for _, s := range t.Sequences() {
			p, ok := t.payloads[s]
			if !ok {
				continue
			}
			if !yield(s, p) {
				return
			}
		}
	}
}
