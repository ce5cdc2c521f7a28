// Package channel implements the byte-level transport the framing layer
// in internal/controller is built on. A Channel exposes only single-byte
// operations; all message framing, resynchronization and header parsing
// live above it, the same separation of concerns the teacher's Card
// interface draws between APDU transmission and the DESFire protocol
// built on top of it.
package channel

import "errors"

// ErrNoData is returned by a non-blocking read when no byte is
// immediately available.
var ErrNoData = errors.New("channel: no data available")

// ErrSomeData is returned by ReadFull when the channel yields fewer bytes
// than requested before giving up (in this package, only the non-Linux
// UART stub does so; SimChannel and the Linux UART block until every byte
// arrives). N is the number of bytes already written into the destination
// slice.
type ErrSomeData struct {
	N int
}

func (e *ErrSomeData) Error() string {
	return "channel: short read"
}

// Channel is the byte-level transport contract shared by the CPU, SSS and
// RAD peripherals. Implementations may be a real memory-mapped UART or an
// in-process simulated pipe; internal/controller never distinguishes
// between them.
type Channel interface {
	// Available reports whether at least one byte can be read without
	// blocking.
	Available() bool

	// ReadByte returns one byte. If blocking is false and no byte is
	// ready, it fails with ErrNoData.
	ReadByte(blocking bool) (byte, error)

	// ReadFull fills dst completely, blocking between bytes. If the
	// channel cannot supply every byte it fails with *ErrSomeData giving
	// the count already written.
	ReadFull(dst []byte) error

	// Discard non-blockingly drops up to n bytes and returns the number
	// actually discarded.
	Discard(n int) int

	// DiscardWhile blocks, consuming bytes for which pred returns true,
	// and returns the first byte for which pred returns false.
	DiscardWhile(pred func(byte) bool) byte

	// Write blocks per byte until the transmit FIFO accepts it.
	Write(buf []byte)
}
