// Package bufpool provides a thread-safe pool of reusable byte buffers,
// organized by power-of-two size class. Bulk read paths (page gathers,
// integrity scans) borrow a buffer for the duration of one pass instead
// of allocating per call.
package bufpool

import (
	"fmt"
	"sync"
)

// MinClass is the smallest buffer size handed out. Requests below it are
// rounded up, everything else to the next power of two.
const MinClass = 4 * 1024

// Buffer is a wrapper around a pooled byte slice that remembers the pool
// it belongs to. This allows for easy releasing.
type Buffer struct {
	b    []byte
	pool *classPool
}

// Bytes returns the backing slice at its full class size. The slice is
// only valid until Close.
func (b *Buffer) Bytes() []byte {
	return b.b
}

// Close returns the buffer to the pool. It doesn't zero the contents; the
// next borrower overwrites them. Closing twice is an error.
func (b *Buffer) Close() error {
	if b.pool == nil {
		return fmt.Errorf("buffer is already released or detached from pool")
	}
	b.pool.put(b.b)
	b.pool = nil
	b.b = nil
	return nil
}

// classPool holds idle buffers of a single size class.
type classPool struct {
	bufs chan []byte
	size int
}

func (p *classPool) get() []byte {
	select {
	case b := <-p.bufs:
		return b
	default:
		return make([]byte, p.size)
	}
}

func (p *classPool) put(b []byte) {
	select {
	case p.bufs <- b:
	default:
		// Class is full; let the garbage collector take it.
	}
}

// Pool manages one classPool per size class.
type Pool struct {
	mu          sync.RWMutex
	classes     map[int]*classPool
	maxPerClass int
}

// New creates a pool keeping at most maxPerClass idle buffers per size
// class.
func New(maxPerClass int) *Pool {
	if maxPerClass <= 0 {
		maxPerClass = 1
	}
	return &Pool{
		classes:     make(map[int]*classPool),
		maxPerClass: maxPerClass,
	}
}

// Get borrows a buffer of at least size bytes.
func (p *Pool) Get(size int) *Buffer {
	class := classFor(size)

	p.mu.RLock()
	cp := p.classes[class]
	p.mu.RUnlock()

	if cp == nil {
		p.mu.Lock()
		if cp = p.classes[class]; cp == nil {
			cp = &classPool{bufs: make(chan []byte, p.maxPerClass), size: class}
			p.classes[class] = cp
		}
		p.mu.Unlock()
	}
	return &Buffer{b: cp.get(), pool: cp}
}

// classFor rounds size up to the next power of two, floored at MinClass.
func classFor(size int) int {
	class := MinClass
	for class < size {
		class <<= 1
	}
	return class
}

// Default is the shared pool used by the chunk I/O paths.
var Default = New(16)
