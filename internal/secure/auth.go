package secure

import (
	"github.com/kestrel-embedded/fleetlink/internal/auth"
	"github.com/kestrel-embedded/fleetlink/internal/crypto"
	"github.com/kestrel-embedded/fleetlink/internal/wire"
)

// AuthHandler performs the secret-based SSS registration and
// deregistration handshake. It has no persistent state beyond the
// per-device shared secret baked in at construction.
type AuthHandler struct {
	secret [HMACKeyLen]byte
}

// NewAuthHandler builds an AuthHandler around a 64-byte shared secret.
func NewAuthHandler(secret [HMACKeyLen]byte) *AuthHandler {
	return &AuthHandler{secret: secret}
}

// Register performs the full registration handshake: build and send an
// 84-byte secure SSS message, read up to 120 bytes back, and on success
// hand back a freshly keyed crypto.Handler.
func (a *AuthHandler) Register(c auth.Controller) (crypto.Handler, bool) {
	return a.handshake(c, wire.Register)
}

// Deregister performs the deregistration handshake; success is indicated
// by the SSS response's op field equalling wire.Deregister.
func (a *AuthHandler) Deregister(c auth.Controller) bool {
	_, ok := a.handshake(c, wire.Deregister)
	return ok
}

func (a *AuthHandler) handshake(c auth.Controller, op wire.SSSOp) (crypto.Handler, bool) {
	buf := c.Buffer()
	req := SecureSSSMessage{DevID: c.ID(), Op: op, Secret: a.secret}
	req.Encode(buf[:secureSSSMessageLen])

	if err := c.SendMsg(wire.SSS, wire.Descriptor{Src: c.ID(), Tgt: wire.SSSId, Len: secureSSSMessageLen}); err != nil {
		return nil, false
	}

	desc, err := c.ReadMsg(wire.SSS, secureSSSSuccessLen)
	if err != nil {
		return nil, false
	}
	if desc.Len < wire.SSSMessageLen {
		return nil, false
	}

	resp := DecodeSecureSSSResponse(buf[:desc.Len])

	if op == wire.Register {
		ackBuf := make([]byte, wire.SSSMessageLen)
		wire.SSSMessage{DevID: resp.DevID, Op: resp.Op}.Encode(ackBuf)
		copy(buf, ackBuf)
		_ = c.SendMsg(wire.CPU, wire.Descriptor{Src: wire.SSSId, Tgt: c.ID(), Len: wire.SSSMessageLen})

		if resp.Keys == nil {
			return nil, false
		}
		return NewHandler(*resp.Keys), true
	}

	ackBuf := make([]byte, wire.SSSMessageLen)
	wire.SSSMessage{DevID: resp.DevID, Op: resp.Op}.Encode(ackBuf)
	copy(buf, ackBuf)
	_ = c.SendMsg(wire.CPU, wire.Descriptor{Src: wire.SSSId, Tgt: c.ID(), Len: wire.SSSMessageLen})

	return nil, resp.Op == wire.Deregister
}
