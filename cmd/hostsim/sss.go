package main

import (
	"log/slog"

	"github.com/kestrel-embedded/fleetlink/internal/channel"
	"github.com/kestrel-embedded/fleetlink/internal/secure"
	"github.com/kestrel-embedded/fleetlink/internal/wire"
)

// simSSS plays the off-device registration service: it accepts the
// 84-byte secure SSS message a controller sends and answers with a
// 120-byte session-key bundle for Register, or a 4-byte acknowledgement
// for Deregister. It runs for the lifetime of the process, one message
// at a time, matching the controller's own single-message-in-flight
// model even though this stub is not itself resource constrained.
func simSSS(ch *channel.SimChannel, keys secure.SessionKeys, log *slog.Logger) {
	buf := make([]byte, 256)
	for {
		desc, err := readFramed(ch, buf)
		if err != nil {
			continue
		}
		if desc.Len < 84 {
			log.Warn("hostsim SSS: short request, ignoring", "len", desc.Len)
			continue
		}

		req := decodeSecureRequest(buf[:desc.Len])
		log.Debug("hostsim SSS: request", "dev_id", uint16(req.devID), "op", req.op)

		var respBuf []byte
		switch req.op {
		case wire.Register:
			respBuf = encodeSuccessResponse(req.devID, wire.Register, keys)
		case wire.Deregister:
			respBuf = encodeAck(req.devID, wire.Deregister)
		default:
			respBuf = encodeAck(req.devID, wire.Already)
		}

		writeFramed(ch, wire.SSSId, desc.Src, respBuf)
	}
}

type secureRequest struct {
	devID wire.Id
	op    wire.SSSOp
}

func decodeSecureRequest(buf []byte) secureRequest {
	c := wire.NewReadCursor(buf)
	return secureRequest{devID: wire.Id(c.ReadU16()), op: wire.SSSOp(c.ReadI16())}
}

func encodeAck(devID wire.Id, op wire.SSSOp) []byte {
	buf := make([]byte, wire.SSSMessageLen)
	wire.SSSMessage{DevID: devID, Op: op}.Encode(buf)
	return buf
}

func encodeSuccessResponse(devID wire.Id, op wire.SSSOp, keys secure.SessionKeys) []byte {
	buf := make([]byte, 120)
	c := wire.NewWriteCursor(buf)
	c = c.WriteU16(uint16(devID)).WriteI16(int16(op))
	c = c.WriteBytes(keys.AESKey[:]).WriteBytes(keys.Seed[:]).WriteBytes(keys.HMACKey[:])
	return buf
}
