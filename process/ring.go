// File: process/ring.go
// Author: ooScott <ooscott@users.noreply.github.com>
// License: Apache-2.0

package process

import "sync/atomic"

// ringBuffer is a bounded MPMC queue of byte chunks: Process.Write enqueues
// from any goroutine while handleInput dequeues on the owning loop's
// goroutine (spec.md §4.4 "write(bytes) appends to an ordered sequence of
// pending chunks"). Adapted from the teacher's core/concurrency/ring.go
// (Vyukov's MPMC ring design) together with the sequence-numbered cell type
// that only the teacher's lock_free_queue.go defined — the two files form one
// unit, and one bounded multi-producer queue covers the one site this module
// needs it for.
type ringBuffer struct {
	head  uint64
	_     [64]byte
	tail  uint64
	_     [64]byte
	mask  uint64
	cells []ringCell
}

type ringCell struct {
	sequence atomic.Uint64
	data     []byte
}

// newRingBuffer allocates a ring of the next power of two >= size.
func newRingBuffer(size int) *ringBuffer {
	if size < 2 {
		size = 2
	}
	n := 1
	for n < size {
		n <<= 1
	}
	r := &ringBuffer{
		mask:  uint64(n - 1),
		cells: make([]ringCell, n),
	}
	for i := range r.cells {
		r.cells[i].sequence.Store(uint64(i))
	}
	return r
}

// Enqueue appends chunk; returns false if the ring is full.
func (r *ringBuffer) Enqueue(chunk []byte) bool {
	for {
		tail := atomic.LoadUint64(&r.tail)
		cell := &r.cells[tail&r.mask]
		seq := cell.sequence.Load()
		diff := int64(seq) - int64(tail)

		switch {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&r.tail, tail, tail+1) {
				cell.data = chunk
				cell.sequence.Store(tail + 1)
				return true
			}
		case diff < 0:
			return false // full
		}
	}
}

// Dequeue removes and returns the oldest chunk; ok is false if empty.
func (r *ringBuffer) Dequeue() ([]byte, bool) {
	for {
		head := atomic.LoadUint64(&r.head)
		cell := &r.cells[head&r.mask]
		seq := cell.sequence.Load()
		diff := int64(seq) - int64(head+1)

		switch {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&r.head, head, head+1) {
				chunk := cell.data
				cell.data = nil
				cell.sequence.Store(head + r.mask + 1)
				return chunk, true
			}
		case diff < 0:
			return nil, false // empty
		}
	}
}
