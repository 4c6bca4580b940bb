package fragment

import (
	"sort"

	"github.com/ValentinKolb/dNet/lib/serial"
)

// ID identifies a fragmented message within one channel
type ID uint32

// Decision is the answer of a pull callback
type Decision uint8

const (
	// Keep leaves the completed assembly in the tracker
	Keep Decision = iota
	// Discard removes the completed assembly from the tracker
	Discard
)

// --------------------------------------------------------------------------
// Assembly
// --------------------------------------------------------------------------

// Assembly is the reassembly state of one fragmented message
type Assembly struct {
	ID          ID
	Count       int
	Size        int
	MessageID   uint32
	MessageType uint16
	Sequence    serial.Number // sequence of the initial piece

	chunks    map[int][]byte
	payload   []byte
	completed bool
}

// Completed reports whether every piece arrived and the size matched
func (a *Assembly) Completed() bool {
	return a.completed
}

// Payload returns the reassembled payload, nil while incomplete
func (a *Assembly) Payload() []byte {
	return a.payload
}

// Received returns how many pieces arrived so far
func (a *Assembly) Received() int {
	return len(a.chunks)
}

// complete concatenates the chunks by index and verifies the declared size
func (a *Assembly) complete() error {
	indices := make([]int, 0, len(a.chunks))
	total := 0
	for i, c := range a.chunks {
		indices = append(indices, i)
		total += len(c)
	}
	if total != a.Size {
		return newError(CodeSizeMismatch, a.ID, "declared %d bytes, got %d", a.Size, total)
	}
	sort.Ints(indices)

	payload := make([]byte, 0, total)
	for _, i := range indices {
		payload = append(payload, a.chunks[i]...)
	}
	a.payload = payload
	a.chunks = nil
	a.completed = true
	return nil
}

// --------------------------------------------------------------------------
// Tracker
// --------------------------------------------------------------------------

// Tracker keeps the assemblies of one channel
type Tracker struct {
	maxCount   int
	maxSize    int
	assemblies map[ID]*Assembly
}

// NewTracker creates a tracker that accepts at most maxCount pieces and maxSize bytes per message
func NewTracker(maxCount, maxSize int) *Tracker {
	return &Tracker{
		maxCount:   maxCount,
		maxSize:    maxSize,
		assemblies: make(map[ID]*Assembly),
	}
}

// ReceiveInitial starts a new assembly with chunk 0
func (t *Tracker) ReceiveInitial(seq serial.Number, id ID, count int, messageID uint32, messageType uint16, totalSize int, chunk []byte) (*Assembly, error) {
	if _, ok := t.assemblies[id]; ok {
		return nil, newError(CodeAlreadyStarted, id, "initial piece received twice")
	}
	if count < 1 || count > t.maxCount {
		return nil, newError(CodeInvalidSegment, id, "piece count %d not in [1,%d]", count, t.maxCount)
	}
	if totalSize < 0 || totalSize > t.maxSize {
		return nil, newError(CodeInvalidSegment, id, "declared size %d exceeds %d", totalSize, t.maxSize)
	}

	a := &Assembly{
		ID:          id,
		Count:       count,
		Size:        totalSize,
		MessageID:   messageID,
		MessageType: messageType,
		Sequence:    seq,
		chunks:      map[int][]byte{0: clone(chunk)},
	}
	if count == 1 {
		if err := a.complete(); err != nil {
			return nil, err
		}
	}
	t.assemblies[id] = a
	return a, nil
}

// ReceiveSegment adds the chunk with the given index to an assembly in progress
func (t *Tracker) ReceiveSegment(_ serial.Number, id ID, index int, chunk []byte) (*Assembly, error) {
	a, ok := t.assemblies[id]
	if !ok {
		return nil, newError(CodeNonexistent, id, "segment %d without initial piece", index)
	}
	if a.completed {
		return nil, newError(CodeSegmentAlreadyProvided, id, "segment %d after completion", index)
	}
	if index < 1 || index >= a.Count {
		return nil, newError(CodeInvalidSegment, id, "segment index %d not in [1,%d)", index, a.Count)
	}
	if _, ok := a.chunks[index]; ok {
		return nil, newError(CodeSegmentAlreadyProvided, id, "segment %d received twice", index)
	}

	a.chunks[index] = clone(chunk)
	if len(a.chunks) == a.Count {
		if err := a.complete(); err != nil {
			// a mismatching assembly can never complete
			delete(t.assemblies, id)
			return nil, err
		}
	}
	return a, nil
}

// Get returns the assembly for id without changing it
func (t *Tracker) Get(id ID) (*Assembly, bool) {
	a, ok := t.assemblies[id]
	return a, ok
}

// Pull hands a completed assembly to fn and removes it if fn returns Discard.
// It reports false if id is unknown or still incomplete.
func (t *Tracker) Pull(id ID, fn func(a *Assembly) Decision) bool {
	a, ok := t.assemblies[id]
	if !ok || !a.completed {
		return false
	}
	if fn(a) == Discard {
		delete(t.assemblies, id)
	}
	return true
}

// Poll reports every incomplete assembly to notReady and offers every
// completed one to ready. Completed assemblies are removed when ready returns
// Discard or when no ready callback is given.
func (t *Tracker) Poll(ready func(a *Assembly) Decision, notReady func(id ID)) {
	for _, id := range t.ids() {
		a := t.assemblies[id]
		if !a.completed {
			if notReady != nil {
				notReady(id)
			}
			continue
		}
		if ready == nil || ready(a) == Discard {
			delete(t.assemblies, id)
		}
	}
}

// Remove drops an assembly regardless of its state
func (t *Tracker) Remove(id ID) bool {
	_, ok := t.assemblies[id]
	delete(t.assemblies, id)
	return ok
}

// MaxCount returns the largest piece count an initial piece may declare
func (t *Tracker) MaxCount() int {
	return t.maxCount
}

// Len returns the number of tracked assemblies
func (t *Tracker) Len() int {
	return len(t.assemblies)
}

// ids returns the tracked ids in ascending order so callbacks fire deterministically
func (t *Tracker) ids() []ID {
	ids := make([]ID, 0, len(t.assemblies))
	for id := range t.assemblies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
