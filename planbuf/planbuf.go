// Package planbuf implements the planning buffer: a fixed-capacity-4 ring
// of pending Targets giving the Segmenter the "previous, current,
// upcoming" lookahead window it needs to blend junction speeds.
//
// Uses a fixed-capacity array with head/tail indices rather than a
// growable queue, generalised to an explicit bounded ring rather than an
// append-and-trim slice.
package planbuf

import "stepcore/target"

// Capacity is the ring's fixed size: three entries give the Segmenter its
// lookahead window, the fourth absorbs an append() before the next
// pop_front().
const Capacity = 4

// Buffer is a bounded FIFO ring of Targets. The zero Buffer is not usable;
// construct with New.
type Buffer struct {
	entries [Capacity]target.Target
	head    int
	size    int
}

// New returns a Buffer seeded with exactly one entry: boot, the machine's
// boot-time pose.
func New(boot target.Target) *Buffer {
	b := &Buffer{}
	b.entries[0] = boot
	b.size = 1
	return b
}

// Size reports how many entries are currently queued.
func (b *Buffer) Size() int { return b.size }

// Back returns the most recently appended entry, the "previous position"
// Target Builder consults when computing the next move's deltas.
func (b *Buffer) Back() *target.Target {
	idx := (b.head + b.size - 1) % Capacity
	return &b.entries[idx]
}

// Append reserves the next slot and returns a pointer to it for the
// caller to populate. It panics if the buffer is already at capacity —
// that indicates a logic error upstream, since the caller is expected to
// drain via the Segmenter before appending further.
func (b *Buffer) Append() *target.Target {
	if b.size >= Capacity {
		panic("planbuf: append would exceed capacity")
	}
	idx := (b.head + b.size) % Capacity
	b.size++
	return &b.entries[idx]
}

// Peek returns the i-th oldest entry (i=0 is the oldest). The Segmenter
// calls Peek(0), Peek(1), Peek(2) for last, target, upcoming.
func (b *Buffer) Peek(i int) *target.Target {
	if i < 0 || i >= b.size {
		panic("planbuf: peek index out of range")
	}
	idx := (b.head + i) % Capacity
	return &b.entries[idx]
}

// PopFront advances the read cursor past the oldest entry.
func (b *Buffer) PopFront() {
	if b.size == 0 {
		panic("planbuf: pop_front on empty buffer")
	}
	b.head = (b.head + 1) % Capacity
	b.size--
}
