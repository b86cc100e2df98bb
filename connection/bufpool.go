// File: connection/bufpool.go
// Author: ooScott <ooscott@users.noreply.github.com>
// License: Apache-2.0

package connection

import "sync"

// sizeClasses mirrors the teacher's pool.sizeClasses table (core/buffer/
// bufferpool.go): power-of-two buckets so same-shaped frames reuse the same
// underlying array instead of round-tripping through the allocator. The
// NUMA-node dimension and hugepage mmap path from the teacher's manager are
// dropped — a stream Connection's payload buffers have no locality
// requirement (see DESIGN.md).
var sizeClasses = [...]int{
	64,
	256,
	1024,
	4096,
	16384,
	65536,
	256 * 1024,
	1024 * 1024,
}

func sizeClassUpperBound(size int) int {
	for _, c := range sizeClasses {
		if size <= c {
			return c
		}
	}
	return size // larger than any class: allocate exactly, don't pool
}

// bufPool hands out []byte slices in power-of-two size classes backed by a
// sync.Pool per class, the idiomatic-Go replacement for the teacher's
// hand-rolled slab pool (no NUMA node selection, no freelist bookkeeping —
// sync.Pool already does per-P caching).
type bufPool struct {
	mu      sync.Mutex
	classes map[int]*sync.Pool
}

func newBufPool() *bufPool {
	return &bufPool{classes: make(map[int]*sync.Pool)}
}

func (p *bufPool) poolFor(class int) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, ok := p.classes[class]
	if !ok {
		sp = &sync.Pool{New: func() any {
			b := make([]byte, class)
			return &b
		}}
		p.classes[class] = sp
	}
	return sp
}

// Get returns a buffer of at least size bytes, sliced to exactly size.
func (p *bufPool) Get(size int) []byte {
	class := sizeClassUpperBound(size)
	if class > sizeClasses[len(sizeClasses)-1] {
		return make([]byte, size)
	}
	buf := p.poolFor(class).Get().(*[]byte)
	return (*buf)[:size]
}

// Put returns a buffer previously obtained from Get back to its class pool.
// Buffers larger than the biggest class are left for the GC.
func (p *bufPool) Put(buf []byte) {
	class := cap(buf)
	if class == 0 || class > sizeClasses[len(sizeClasses)-1] {
		return
	}
	full := buf[:cap(buf)]
	p.poolFor(class).Put(&full)
}

var defaultBufPool = newBufPool()
