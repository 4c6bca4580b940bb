package sent

import (
	"container/heap"
	"strconv"

	"github.com/ValentinKolb/dNet/lib/serial"
)

// item is a deadline entry in the heap
type item struct {
	Key      serial.Number // sequence of the tracked packet
	Priority uint64        // absolute tick at which the entry expires
	index    int           // index in the heap, maintained by heap package
}

func (i *item) String() string {
	return "{Key: " + i.Key.String() + ", Priority: " + strconv.FormatUint(i.Priority, 10) + "}"
}

// mapHeap is a min-heap of deadlines with key-based access.
// It is not thread-safe.
type mapHeap struct {
	items    []*item
	itemsMap map[serial.Number]*item
}

func newMapHeap() *mapHeap {
	return &mapHeap{
		items:    make([]*item, 0),
		itemsMap: make(map[serial.Number]*item),
	}
}

// Len returns the number of items (part of heap.Interface)
func (h *mapHeap) Len() int { return len(h.items) }

// Less orders by deadline, ties by sequence so expiry order is deterministic (part of heap.Interface)
func (h *mapHeap) Less(i, j int) bool {
	if h.items[i].Priority != h.items[j].Priority {
		return h.items[i].Priority < h.items[j].Priority
	}
	return serial.Less(h.items[i].Key, h.items[j].Key)
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (h *mapHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

// Push adds an item (part of heap.Interface)
func (h *mapHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(h.items)
	h.items = append(h.items, it)
	h.itemsMap[it.Key] = it
}

// Pop removes and returns the last item (part of heap.Interface)
func (h *mapHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // avoid memory leak
	it.index = -1
	h.items = old[:n-1]
	delete(h.itemsMap, it.Key)
	return it
}

// set adds a deadline for key or moves an existing one
func (h *mapHeap) set(key serial.Number, priority uint64) {
	if it, exists := h.itemsMap[key]; exists {
		it.Priority = priority
		heap.Fix(h, it.index)
		return
	}
	heap.Push(h, &item{Key: key, Priority: priority})
}

// removeByKey removes the deadline for key
func (h *mapHeap) removeByKey(key serial.Number) (uint64, bool) {
	it, exists := h.itemsMap[key]
	if !exists {
		return 0, false
	}
	heap.Remove(h, it.index)
	return it.Priority, true
}

// peek returns the earliest deadline without removing it
func (h *mapHeap) peek() (*item, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0], true
}

// get returns the deadline item for key
func (h *mapHeap) get(key serial.Number) (*item, bool) {
	it, exists := h.itemsMap[key]
	return it, exists
}
