package controller

import (
	"runtime"

	"github.com/kestrel-embedded/fleetlink/internal/diag"
	"github.com/kestrel-embedded/fleetlink/internal/wire"
)

// Run drives the controller's single dispatch loop forever. It never
// returns; every error encountered along the way is recovered locally by
// dropping the offending message, never by terminating the loop.
func (c *Controller) Run() {
	for {
		desc, err := c.ReadMsg(wire.CPU, wire.MaxPayloadLen)
		if err == nil && desc.Tgt.IsSSS() {
			c.handleRegistration(desc, false)
		}

		for c.Registered() {
			if c.chanFor(wire.CPU).Available() {
				c.dispatchFromCPU()
				continue
			}
			if c.chanFor(wire.RAD).Available() {
				c.dispatchFromRAD()
				continue
			}
			runtime.Gosched()
		}
	}
}

// dispatchFromCPU reads one message from the CPU and routes it by
// target, as spec'd for the Registered state.
func (c *Controller) dispatchFromCPU() {
	desc, err := c.ReadMsg(wire.CPU, wire.MaxPayloadLen)
	if err != nil {
		return
	}

	switch {
	case desc.Tgt.IsBroadcast():
		c.sendEncrypted(wire.Broadcast, desc)
	case desc.Tgt.IsSSS():
		c.handleRegistration(desc, true)
	case desc.Tgt.IsFAA():
		c.forwardVerbatim(wire.RAD, desc, c.id, wire.FAA)
	default:
		c.sendEncrypted(desc.Tgt, desc)
	}
}

// dispatchFromRAD reads one message from the radio and routes it by
// (source, target), as spec'd for the Registered state.
func (c *Controller) dispatchFromRAD() {
	desc, err := c.ReadMsg(wire.RAD, wire.MaxPayloadLen)
	if err != nil {
		return
	}

	switch {
	case desc.Tgt.IsBroadcast():
		c.decryptAndForward(desc, wire.Broadcast)
	case desc.Src.IsFAA() && desc.Tgt == c.id:
		c.forwardVerbatim(wire.CPU, desc, desc.Src, c.id)
	case desc.Tgt == c.id:
		c.decryptAndForward(desc, c.id)
	default:
		diag.Drop(c.log, "radio message addressed to another peer", "src", desc.Src, "tgt", desc.Tgt)
	}
}

// sendEncrypted encrypts the cleartext currently in the shared buffer and
// transmits it over RAD to tgt.
func (c *Controller) sendEncrypted(tgt wire.Id, desc wire.Descriptor) {
	newLen := c.cryptoH.Encrypt(c.buf, wire.Descriptor{Src: c.id, Tgt: tgt, Len: desc.Len})
	_ = c.SendMsg(wire.RAD, wire.Descriptor{Src: c.id, Tgt: tgt, Len: newLen})
}

// decryptAndForward decrypts the envelope currently in the shared buffer
// and, on success, forwards the cleartext to the CPU with tgt as the
// target field (self for a direct message, Broadcast for a broadcast).
// A verification or integrity failure silently drops the message.
func (c *Controller) decryptAndForward(desc wire.Descriptor, tgt wire.Id) {
	newLen, ok := c.cryptoH.Decrypt(c.buf, desc)
	if !ok {
		diag.Drop(c.log, "decrypt failed integrity check", "src", desc.Src, "tgt", desc.Tgt)
		return
	}
	_ = c.SendMsg(wire.CPU, wire.Descriptor{Src: desc.Src, Tgt: tgt, Len: newLen})
}

// forwardVerbatim relays the message currently in the shared buffer to
// dstIntf unmodified, with src/tgt as given. Used for FAA traffic, which
// is exempt from the crypto handler entirely.
func (c *Controller) forwardVerbatim(dstIntf wire.Intf, desc wire.Descriptor, src, tgt wire.Id) {
	_ = c.SendMsg(dstIntf, wire.Descriptor{Src: src, Tgt: tgt, Len: desc.Len})
}

// handleRegistration parses the 4-byte SSS control message sitting in the
// shared buffer and delegates to the auth handler. registered reflects
// the controller's current state, since only a Register is meaningful
// while Unregistered and only a Deregister is meaningful once Registered.
func (c *Controller) handleRegistration(desc wire.Descriptor, registered bool) {
	if desc.Len < wire.SSSMessageLen {
		return
	}
	msg := wire.DecodeSSSMessage(c.buf[:wire.SSSMessageLen])

	switch {
	case !registered && msg.Op == wire.Register:
		if h, ok := c.authH.Register(c); ok {
			c.cryptoH = h
		}
	case registered && msg.Op == wire.Deregister:
		if c.authH.Deregister(c) {
			c.cryptoH = nil
		}
	}
}
