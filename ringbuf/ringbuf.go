// Package ringbuf implements the capture ring buffer: a fixed-capacity
// single-producer/single-consumer byte queue bridging the latency-critical
// line-sampling goroutine and the slower packet-assembly loop.
//
// Design principles:
// - No locks: correctness relies solely on the SPSC discipline
// - Producer publishes data before advancing its index (write, then release
//   store of the write index); the consumer acquires the index before reading
// - Push never blocks and never overwrites unread data; a full buffer drops
//   the byte and counts the loss
package ringbuf

import "sync/atomic"

// Size must be a power of two so index wrapping is a mask.
const (
	Size = 128
	mask = Size - 1
)

// Buffer is a lock-free SPSC byte ring. The zero value is ready to use.
// Push and Overflows belong to the producer; Pop and Peek to the consumer.
// Len and Free may be called from either side.
type Buffer struct {
	buf [Size]byte

	write     atomic.Uint32
	read      atomic.Uint32
	overflows atomic.Uint32
}

// Push attempts to insert one byte. It returns false and counts an overflow
// when the buffer is full. It never waits and never overwrites unread data.
func (b *Buffer) Push(v byte) bool {
	w := b.write.Load()
	next := (w + 1) & mask
	if next == b.read.Load() {
		b.overflows.Add(1)
		return false
	}
	b.buf[w] = v
	b.write.Store(next) // release: data visible before index
	return true
}

// Pop removes and returns the oldest byte. ok is false when empty.
func (b *Buffer) Pop() (v byte, ok bool) {
	r := b.read.Load()
	if r == b.write.Load() {
		return 0, false
	}
	v = b.buf[r]
	b.read.Store((r + 1) & mask)
	return v, true
}

// Peek returns the byte at the given offset from the read position without
// consuming it. ok is false when the offset is beyond the available data.
func (b *Buffer) Peek(offset uint32) (v byte, ok bool) {
	if offset >= b.Len() {
		return 0, false
	}
	return b.buf[(b.read.Load()+offset)&mask], true
}

// Len returns the number of bytes available for reading.
func (b *Buffer) Len() uint32 {
	return (b.write.Load() - b.read.Load()) & mask
}

// Free returns the number of bytes that can still be pushed.
func (b *Buffer) Free() uint32 {
	return Size - b.Len() - 1
}

// Overflows returns the number of dropped writes since the last Reset.
func (b *Buffer) Overflows() uint32 {
	return b.overflows.Load()
}

// PushSlice pushes as many bytes as fit and returns how many were accepted.
func (b *Buffer) PushSlice(p []byte) int {
	n := 0
	for _, v := range p {
		if !b.Push(v) {
			break
		}
		n++
	}
	return n
}

// PopSlice pops up to len(p) bytes into p and returns how many were read.
func (b *Buffer) PopSlice(p []byte) int {
	n := 0
	for i := range p {
		v, ok := b.Pop()
		if !ok {
			break
		}
		p[i] = v
		n++
	}
	return n
}

// Reset discards buffered data and clears the overflow counter. Only safe
// when the producer is quiescent.
func (b *Buffer) Reset() {
	b.read.Store(b.write.Load())
	b.overflows.Store(0)
}
