// Package mempool implements the monitor's bounded memory management: a
// shared arena allocated once at start and carved into object slots, plus the
// capacity-bounded per-task and shared allocation pools behind the GETMAIN
// and FREEMAIN operations.
//
// Pools give every task a deterministic, inspectable set of live allocations
// so task-end and abend cleanup can release exactly what is still held.
package mempool

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrArenaExhausted is returned when no free span can satisfy a
	// shared allocation.
	ErrArenaExhausted = errors.New("mempool: shared arena exhausted")

	// ErrPoolFull is returned when a pool has reached its slot capacity.
	ErrPoolFull = errors.New("mempool: allocation pool full")

	// ErrNotAllocated is returned by Free for storage the pool does not
	// own.
	ErrNotAllocated = errors.New("mempool: storage not allocated here")
)

// span is a free region inside the arena.
type span struct {
	off int
	len int
}

// Arena is a fixed-size region allocated once at monitor start and carved
// into object slots on demand. All operations are guarded by one process-wide
// mutex; allocations made by one task become visible to another through that
// mutex.
type Arena struct {
	mu   sync.Mutex
	buf  []byte
	free []span
}

// NewArena creates an arena of the given byte size.
func NewArena(size int) *Arena {
	return &Arena{
		buf:  make([]byte, size),
		free: []span{{off: 0, len: size}},
	}
}

// Alloc carves length bytes out of the arena, first-fit. The returned slice
// aliases the arena region and its offset is needed again on Free.
func (a *Arena) Alloc(length int) ([]byte, int, error) {
	if length <= 0 {
		return nil, 0, ErrNotAllocated
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, s := range a.free {
		if s.len < length {
			continue
		}
		if s.len == length {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i] = span{off: s.off + length, len: s.len - length}
		}
		return a.buf[s.off : s.off+length : s.off+length], s.off, nil
	}
	return nil, 0, ErrArenaExhausted
}

// Free returns a span to the arena, coalescing with its neighbours. The
// length must be the original allocation length.
func (a *Arena) Free(off, length int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.free = append(a.free, span{off: off, len: length})
	sort.Slice(a.free, func(i, j int) bool { return a.free[i].off < a.free[j].off })

	merged := a.free[:1]
	for _, s := range a.free[1:] {
		last := &merged[len(merged)-1]
		if last.off+last.len == s.off {
			last.len += s.len
		} else {
			merged = append(merged, s)
		}
	}
	a.free = merged
}

// Available reports the total free bytes remaining.
func (a *Arena) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, s := range a.free {
		total += s.len
	}
	return total
}

// Size reports the arena's fixed size.
func (a *Arena) Size() int {
	return len(a.buf)
}
