package controller

import (
	"github.com/kestrel-embedded/fleetlink/internal/channel"
	"github.com/kestrel-embedded/fleetlink/internal/diag"
	"github.com/kestrel-embedded/fleetlink/internal/wire"
)

// ReadMsg performs the framed read algorithm shared by every channel:
// resynchronize on the S,C magic, decode the header, reject a self-echo
// or oversize message, run radio traffic through cryptographic
// verification, then read the remaining payload into the shared buffer.
// The returned descriptor's Len is the raw (pre-decrypt) byte count;
// decryption, if any, is the dispatch handler's job.
func (c *Controller) ReadMsg(intf wire.Intf, maxLen int) (wire.Descriptor, error) {
	ch := c.chanFor(intf)
	c.resync(ch)

	var hdrBody [6]byte
	if err := ch.ReadFull(hdrBody[:]); err != nil {
		return wire.Descriptor{}, &DropError{Reason: "short read on header", Err: ErrNoMessage}
	}
	hdr := wire.DecodeHeaderBody(hdrBody[:])
	bodyLen := int(hdr.Len)

	if intf == wire.RAD && hdr.Src == c.id {
		ch.Discard(bodyLen)
		diag.Drop(c.log, "self-echo on RAD", "src", hdr.Src)
		return wire.Descriptor{}, ErrNoMessage
	}

	if bodyLen > maxLen {
		ch.Discard(bodyLen)
		diag.Drop(c.log, "body exceeds max length", "intf", intf, "len", bodyLen, "max", maxLen)
		return wire.Descriptor{}, ErrNoMessage
	}

	desc := wire.Descriptor{Src: hdr.Src, Tgt: hdr.Tgt, Len: bodyLen}

	offset := 0
	if intf == wire.RAD && !hdr.Src.IsFAA() {
		if c.cryptoH == nil {
			ch.Discard(bodyLen)
			diag.Drop(c.log, "radio message received while unregistered", "src", hdr.Src)
			return wire.Descriptor{}, ErrNoMessage
		}
		verLen := c.cryptoH.VerificationLen()
		if verLen > bodyLen {
			ch.Discard(bodyLen)
			diag.Drop(c.log, "body too short for verification segment", "src", hdr.Src, "len", bodyLen)
			return wire.Descriptor{}, ErrNoMessage
		}
		if err := ch.ReadFull(c.buf[:verLen]); err != nil {
			diag.Drop(c.log, "short read on verification segment", "src", hdr.Src, "error", err)
			return wire.Descriptor{}, &DropError{Reason: "short read on verification segment", Err: ErrNoMessage}
		}
		if !c.cryptoH.Verify(c.buf[:verLen], desc) {
			ch.Discard(bodyLen - verLen)
			diag.Drop(c.log, "verification failed", "src", hdr.Src, "tgt", hdr.Tgt)
			return wire.Descriptor{}, ErrUnknown
		}
		offset = verLen
	}

	if err := ch.ReadFull(c.buf[offset:bodyLen]); err != nil {
		diag.Drop(c.log, "short read on body", "src", hdr.Src, "error", err)
		return wire.Descriptor{}, &DropError{Reason: "short read on body", Err: ErrNoMessage}
	}

	return desc, nil
}

// resync discards bytes until the magic "S","C" pair is found, exactly
// as spec'd: run past noise to an S, then past a run of S's, accepting
// the first non-S byte only if it is C.
func (c *Controller) resync(ch channel.Channel) {
	for {
		ch.DiscardWhile(func(b byte) bool { return b != 'S' })
		next := ch.DiscardWhile(func(b byte) bool { return b == 'S' })
		if next == 'C' {
			return
		}
	}
}

// SendMsg emits the 8-byte transport header followed by msg.Len bytes
// from the shared buffer. There is no framing escape; a reader resyncs
// purely on the magic bytes.
func (c *Controller) SendMsg(intf wire.Intf, msg wire.Descriptor) error {
	var hdrBuf [wire.HeaderLen]byte
	wire.Header{Tgt: msg.Tgt, Src: msg.Src, Len: uint16(msg.Len)}.Encode(hdrBuf[:])

	ch := c.chanFor(intf)
	ch.Write(hdrBuf[:])
	ch.Write(c.buf[:msg.Len])
	return nil
}
