// Package ring provides a fixed-capacity circular byte buffer that overwrites
// its oldest unread bytes when a write does not fit.
//
// A Buffer of capacity N can hold at most N-1 unread bytes.  The last slot is
// never filled, so that equal read and write cursors always mean "empty".
//
// A Buffer does no locking of its own.  A producer calling Write and a
// consumer calling Read must be serialized by the caller.
package ring

import "fmt"

// Buffer is a circular byte buffer with overwrite-on-full semantics.  The zero
// value is not usable; create one with New.
type Buffer struct {
	data  []byte
	write int
	read  int
}

// New returns an empty Buffer with room for n bytes of storage, of which n-1
// are usable.  New panics if n is less than 2.
func New(n int) *Buffer {
	if n < 2 {
		panic(fmt.Sprintf("ring: capacity %d is too small", n))
	}
	return &Buffer{data: make([]byte, n)}
}

// Cap returns the size of the underlying storage.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Empty reports whether the buffer holds no unread bytes.
func (b *Buffer) Empty() bool {
	return b.read == b.write
}

// Full reports whether the buffer holds Cap()-1 unread bytes.
func (b *Buffer) Full() bool {
	return b.read == b.wrap(b.write+1)
}

// AvailableToRead returns the number of unread bytes.
func (b *Buffer) AvailableToRead() int {
	if b.read <= b.write {
		return b.write - b.read
	}
	return len(b.data) - b.read + b.write
}

// AvailableToWrite returns the number of bytes that can be written without
// overwriting unread data.  AvailableToRead() + AvailableToWrite() is always
// Cap()-1.
func (b *Buffer) AvailableToWrite() int {
	return len(b.data) - 1 - b.AvailableToRead()
}

// Read copies up to len(dst) unread bytes into dst and consumes them.  It
// returns the number of bytes copied, which is 0 if the buffer is empty.
func (b *Buffer) Read(dst []byte) int {
	first, second := b.Contiguous()
	n := copy(dst, first)
	n += copy(dst[n:], second)
	b.read = b.wrap(b.read + n)
	return n
}

// Write appends src to the buffer and always returns len(src).
//
// If src is larger than AvailableToWrite(), the oldest unread bytes are
// overwritten and the buffer is left full: the read cursor is moved to the
// slot just past the write cursor.  Callers that need to detect the loss
// should compare AvailableToWrite() before the call with len(src).
func (b *Buffer) Write(src []byte) int {
	n := len(src)
	if n == 0 {
		return 0
	}
	overflow := n > b.AvailableToWrite()
	end := b.wrap(b.write + n%len(b.data))

	// Only the last Cap()-1 bytes of an oversized write can survive; they end
	// just before the new write cursor.
	start := b.write
	if max := len(b.data) - 1; n > max {
		src = src[n-max:]
		start = b.wrap(end + 1)
	}

	copied := copy(b.data[start:], src)
	copy(b.data, src[copied:])

	b.write = end
	if overflow {
		b.read = b.wrap(b.write + 1)
	}
	return n
}

// Contiguous returns the unread region as at most two slices that alias the
// buffer's storage.  second is nil unless the unread region wraps past the end
// of storage.  The slices are only valid until the next Write, Discard or
// Reset.
func (b *Buffer) Contiguous() (first, second []byte) {
	if b.read <= b.write {
		return b.data[b.read:b.write], nil
	}
	first = b.data[b.read:]
	if b.write > 0 {
		second = b.data[:b.write]
	}
	return first, second
}

// Discard consumes up to n unread bytes without copying them, and returns the
// number of bytes discarded.
func (b *Buffer) Discard(n int) int {
	if avail := b.AvailableToRead(); n > avail {
		n = avail
	}
	if n <= 0 {
		return 0
	}
	b.read = b.wrap(b.read + n)
	return n
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.read = 0
	b.write = 0
}

func (b *Buffer) wrap(i int) int {
	if i >= len(b.data) {
		i -= len(b.data)
	}
	return i
}
