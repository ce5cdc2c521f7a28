package wire

import "encoding/binary"

// the CPU and controller share an architecture by construction, so every
// multi-byte field on the wire uses the host's native byte order rather
// than a fixed endianness.
var nativeOrder = binary.NativeEndian

// ReadCursor is a zero-copy, advancing view over a borrowed byte slice.
type ReadCursor struct {
	buf []byte
}

// NewReadCursor wraps buf for sequential reads. It does not copy buf.
func NewReadCursor(buf []byte) ReadCursor {
	return ReadCursor{buf: buf}
}

// Advance drops the first n bytes from the cursor.
func (c *ReadCursor) Advance(n int) { c.buf = c.buf[n:] }

// Limit truncates the cursor to its first n bytes.
func (c *ReadCursor) Limit(n int) { c.buf = c.buf[:n] }

// Remaining returns the number of unread bytes.
func (c *ReadCursor) Remaining() int { return len(c.buf) }

// ReadU16 reads a native-order uint16 and advances the cursor.
func (c *ReadCursor) ReadU16() uint16 {
	v := nativeOrder.Uint16(c.buf)
	c.Advance(2)
	return v
}

// ReadI16 reads a native-order int16 and advances the cursor.
func (c *ReadCursor) ReadI16() int16 {
	v := int16(nativeOrder.Uint16(c.buf))
	c.Advance(2)
	return v
}

// ReadU64 reads a native-order uint64 and advances the cursor.
func (c *ReadCursor) ReadU64() uint64 {
	v := nativeOrder.Uint64(c.buf)
	c.Advance(8)
	return v
}

// ReadBytes copies the next n bytes into a freshly allocated slice and
// advances the cursor.
func (c *ReadCursor) ReadBytes(n int) []byte {
	out := make([]byte, n)
	copy(out, c.buf[:n])
	c.Advance(n)
	return out
}

// WriteCursor is a zero-copy view over a borrowed byte slice that is
// written to in place. Each write method consumes the receiver and returns
// an advanced cursor, so chained writes cannot alias a stale offset.
type WriteCursor struct {
	buf []byte
}

// NewWriteCursor wraps buf for sequential writes. It does not copy buf.
func NewWriteCursor(buf []byte) WriteCursor {
	return WriteCursor{buf: buf}
}

// Advance returns a cursor over the tail of buf starting at offset n.
func (c WriteCursor) Advance(n int) WriteCursor {
	return WriteCursor{buf: c.buf[n:]}
}

// WriteU16 writes v in native order and returns the advanced cursor.
func (c WriteCursor) WriteU16(v uint16) WriteCursor {
	nativeOrder.PutUint16(c.buf, v)
	return c.Advance(2)
}

// WriteI16 writes v in native order and returns the advanced cursor.
func (c WriteCursor) WriteI16(v int16) WriteCursor {
	nativeOrder.PutUint16(c.buf, uint16(v))
	return c.Advance(2)
}

// WriteU64 writes v in native order and returns the advanced cursor.
func (c WriteCursor) WriteU64(v uint64) WriteCursor {
	nativeOrder.PutUint64(c.buf, v)
	return c.Advance(8)
}

// WriteBytes copies b into the cursor and returns the advanced cursor.
func (c WriteCursor) WriteBytes(b []byte) WriteCursor {
	n := copy(c.buf, b)
	return c.Advance(n)
}

// WriteZero zeroes the next n bytes and returns the advanced cursor. Used
// for reserved/padding fields so a borrowed, reused buffer never leaks
// stale bytes onto the wire.
func (c WriteCursor) WriteZero(n int) WriteCursor {
	clear(c.buf[:n])
	return c.Advance(n)
}
