// Package address builds bounded, host-qualified recipient lists and sender
// addresses for notification mail.
package address

import "strings"

// DefaultCapacity is the size of the recipient buffer, including the
// terminating NUL the byte accounting reserves.
const DefaultCapacity = 1024

// Buffer is a capacity-checked accumulator. Callers ask Fits before each
// Append; Append never writes a partial value.
type Buffer struct {
	capacity  int
	accounted int
	b         strings.Builder
}

// NewBuffer returns an empty buffer of the given capacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity}
}

// Fits reports whether accounting cost more bytes keeps the buffer strictly
// below capacity, leaving room for the terminator.
func (b *Buffer) Fits(cost int) bool {
	return b.accounted+cost < b.capacity
}

// Append writes parts and charges cost bytes against the capacity. It
// returns false without writing anything when cost does not fit.
func (b *Buffer) Append(cost int, parts ...string) bool {
	if !b.Fits(cost) {
		return false
	}
	b.accounted += cost
	for _, p := range parts {
		b.b.WriteString(p)
	}
	return true
}

// Len returns the number of bytes written.
func (b *Buffer) Len() int {
	return b.b.Len()
}

// Capacity returns the configured capacity.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// String returns the accumulated content.
func (b *Buffer) String() string {
	return b.b.String()
}
