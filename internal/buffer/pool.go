// Package buffer implements the fixed-iovec buffer pool each worker
// registers with its ring as a kernel fixed-buffer set.
package buffer

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// state values for a buffer slot.
const (
	stateFree = iota
	stateInUse
)

// Pool is a worker-local, non-atomic allocator over a flat mmap'd arena of
// equal-size buffers. It is never shared across goroutines: a ring is owned
// by exactly one thread, and so is its Pool.
type Pool struct {
	arena      []byte
	bufferSize int
	count      int

	iovecs []unix.Iovec
	state  []int

	// available is a rotating cursor that scans forward from the last
	// allocation; wrapping all the way around without finding a free
	// slot signals exhaustion.
	available int

	freeCount int
}

// NewPool mmaps a single arena of count*bufferSize bytes and carves it into
// count equal buffers, mirroring the flat-arena layout used by the
// giouring-backed ring examples (one mmap call rather than one per buffer).
func NewPool(count, bufferSize int) (*Pool, error) {
	if count <= 0 || bufferSize <= 0 {
		return nil, fmt.Errorf("buffer: invalid pool dimensions count=%d size=%d", count, bufferSize)
	}

	arena, err := unix.Mmap(-1, 0, count*bufferSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("buffer: mmap arena: %w", err)
	}

	p := &Pool{
		arena:      arena,
		bufferSize: bufferSize,
		count:      count,
		iovecs:     make([]unix.Iovec, count),
		state:      make([]int, count),
		freeCount:  count,
	}
	for i := 0; i < count; i++ {
		p.iovecs[i].Base = &arena[i*bufferSize]
		p.iovecs[i].SetLen(bufferSize)
	}
	return p, nil
}

// Count returns the total number of buffers in the pool.
func (p *Pool) Count() int { return p.count }

// BufferSize returns the capacity of a single buffer.
func (p *Pool) BufferSize() int { return p.bufferSize }

// FreeCount returns the number of buffers currently on the free list.
func (p *Pool) FreeCount() int { return p.freeCount }

// Iovecs returns the full fixed-buffer table for kernel registration. The
// returned slice must not be mutated or resized; base pointers are stable
// for the pool's lifetime.
func (p *Pool) Iovecs() []unix.Iovec { return p.iovecs }

// Get returns a free buffer id, or ok=false if the pool is exhausted. Get
// never blocks; the caller must yield to the scheduler and retry.
func (p *Pool) Get() (id int, ok bool) {
	if p.freeCount == 0 {
		return 0, false
	}
	for i := 0; i < p.count; i++ {
		idx := (p.available + i) % p.count
		if p.state[idx] == stateFree {
			p.state[idx] = stateInUse
			p.freeCount--
			p.available = (idx + 1) % p.count
			return idx, true
		}
	}
	return 0, false
}

// Release returns a buffer id to the free list. Releasing an id that is
// already free is a programming error.
func (p *Pool) Release(id int) {
	if id < 0 || id >= p.count {
		panic(fmt.Sprintf("buffer: release out-of-range id %d", id))
	}
	if p.state[id] == stateFree {
		panic(fmt.Sprintf("buffer: double release of id %d", id))
	}
	p.state[id] = stateFree
	p.freeCount++
	p.iovecs[id].SetLen(p.bufferSize)
}

// Bytes returns the backing slice for a buffer id, sized to its current
// logical length (not its capacity).
func (p *Pool) Bytes(id int) []byte {
	start := id * p.bufferSize
	return p.arena[start : start+int(p.iovecs[id].Len)]
}

// Capacity returns the full-capacity backing slice for a buffer id,
// independent of its current logical length; used when preparing a read.
func (p *Pool) Capacity(id int) []byte {
	start := id * p.bufferSize
	return p.arena[start : start+p.bufferSize]
}

// SetLength sets the current logical length of a buffer, e.g. after a read
// completion reports how many bytes actually landed.
func (p *Pool) SetLength(id, n int) {
	if n < 0 || n > p.bufferSize {
		panic(fmt.Sprintf("buffer: invalid length %d for buffer size %d", n, p.bufferSize))
	}
	p.iovecs[id].SetLen(n)
}

// Close unmaps the pool's backing arena. The pool must not be used
// afterwards.
func (p *Pool) Close() error {
	if p.arena == nil {
		return nil
	}
	err := unix.Munmap(p.arena)
	p.arena = nil
	return err
}
