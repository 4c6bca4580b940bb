// Package queue provides a lock-free Multi-Producer Single-Consumer (MPSC) queue.
//
// Features and Guarantees:
//
//   - Lock-Free: producers append with atomic compare-and-swap, no mutex on the hot path
//   - Unbounded Size: the queue grows as needed, limited only by available memory
//   - Non-Blocking Consumer: TryPop and Drain return immediately when the queue is empty,
//     which lets a tick loop take whatever arrived since the last tick
//   - Thread-Safe writes: any number of goroutines may Push concurrently
//   - Single Consumer: TryPop, Drain and Len must only be called from one goroutine at a time
//   - No Strict FIFO Guarantee across producers: concurrent pushes are ordered by whichever
//     producer completes its CAS first. Pushes of a single producer stay in order.
package queue
