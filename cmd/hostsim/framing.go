package main

import (
	"fmt"

	"github.com/kestrel-embedded/fleetlink/internal/channel"
	"github.com/kestrel-embedded/fleetlink/internal/wire"
)

// readFramed and writeFramed give the harness processes (the simulated
// SSS and the operator console) the same framed I/O the controller uses,
// without depending on internal/controller: hostsim plays the role of
// external parties the controller talks to, not the controller itself.

func readFramed(ch *channel.SimChannel, buf []byte) (wire.Descriptor, error) {
	for {
		b := ch.DiscardWhile(func(b byte) bool { return b != 'S' })
		_ = b
		next := ch.DiscardWhile(func(b byte) bool { return b == 'S' })
		if next == 'C' {
			break
		}
	}

	var hdrBody [6]byte
	if err := ch.ReadFull(hdrBody[:]); err != nil {
		return wire.Descriptor{}, fmt.Errorf("hostsim: short header")
	}
	hdr := wire.DecodeHeaderBody(hdrBody[:])
	bodyLen := int(hdr.Len)
	if bodyLen > len(buf) {
		ch.Discard(bodyLen)
		return wire.Descriptor{}, fmt.Errorf("hostsim: body too large for scratch buffer")
	}
	if err := ch.ReadFull(buf[:bodyLen]); err != nil {
		return wire.Descriptor{}, fmt.Errorf("hostsim: short body")
	}
	return wire.Descriptor{Src: hdr.Src, Tgt: hdr.Tgt, Len: bodyLen}, nil
}

func writeFramed(ch *channel.SimChannel, src, tgt wire.Id, payload []byte) {
	var hdrBuf [wire.HeaderLen]byte
	wire.Header{Tgt: tgt, Src: src, Len: uint16(len(payload))}.Encode(hdrBuf[:])
	ch.Write(hdrBuf[:])
	ch.Write(payload)
}
