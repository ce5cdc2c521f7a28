// Package secure is the concrete cryptographic and registration handler:
// AES-128-CBC confidentiality, HMAC-SHA-256 authenticity, a SHA-256 body
// digest, and per-peer monotone counters for replay resistance, plus the
// secret-based SSS registration/deregistration handshake that provisions
// it.
package secure

import "github.com/kestrel-embedded/fleetlink/internal/wire"

const (
	// ivLen is the random per-message initialization vector size.
	ivLen = 16
	// ctrLen is the wire size of the per-message counter.
	ctrLen = 8
	// hmacLen is the size of an HMAC-SHA-256 tag.
	hmacLen = 32
	// VerificationLen is the fixed size of the verification segment that
	// precedes the encrypted segment on every secure radio message.
	VerificationLen = ivLen + ctrLen + hmacLen // 56

	// shaLen is the size of the cleartext digest stored in the content
	// header.
	shaLen = 32
	// msgLenFieldLen is the wire size of the content header's length field.
	msgLenFieldLen = 8
	// contentHeaderLen is the fixed-size header prepended to the
	// cleartext before CBC encryption.
	contentHeaderLen = shaLen + msgLenFieldLen // 40

	// AESKeyLen is the AES-128 key size.
	AESKeyLen = 16
	// SeedLen is the RNG seed size delivered at registration.
	SeedLen = 32
	// HMACKeyLen is the HMAC-SHA-256 key size.
	HMACKeyLen = 64
)

// secureSSSMessageLen is the wire size of a SecureSSSMessage (dev_id, op,
// shared secret), padded with reserved zero bytes to the 84-byte size
// spec'd; the three named fields alone sum to 68 bytes, so Encode zeroes
// the remaining 16 reserved bytes rather than leaving whatever was
// already in the caller's buffer.
const secureSSSMessageLen = 84

// secureSSSSuccessLen is the wire size of a successful SecureSSSResponse
// (dev_id, op, AES key, seed, HMAC key), similarly padded with reserved
// zero bytes to the spec'd 120-byte size; the named fields sum to 116.
const secureSSSSuccessLen = 120

// SecureSSSMessage is the outbound registration/deregistration request
// sent from the controller to the SSS.
type SecureSSSMessage struct {
	DevID  wire.Id
	Op     wire.SSSOp
	Secret [HMACKeyLen]byte // 64-byte shared secret
}

// Encode writes the 84-byte wire form of m into buf, zeroing the reserved
// tail so no stale bytes from a reused buffer ever reach the wire.
func (m SecureSSSMessage) Encode(buf []byte) {
	c := wire.NewWriteCursor(buf)
	c = c.WriteU16(uint16(m.DevID)).WriteI16(int16(m.Op)).WriteBytes(m.Secret[:])
	c.WriteZero(secureSSSMessageLen - (2 + 2 + HMACKeyLen))
}

// SecureSSSResponse is the SSS's reply to a SecureSSSMessage: either a
// 4-byte negative acknowledgement (Keys == nil) or a 120-byte success
// carrying fresh session keys.
type SecureSSSResponse struct {
	DevID wire.Id
	Op    wire.SSSOp
	Keys  *SessionKeys // nil on negative acknowledgement
}

// SessionKeys are the keys and seed delivered by a successful
// registration.
type SessionKeys struct {
	AESKey  [AESKeyLen]byte
	Seed    [SeedLen]byte
	HMACKey [HMACKeyLen]byte
}

// DecodeSecureSSSResponse parses a buffer of at least 4 bytes. A buffer
// of 120 bytes or more is decoded as a success carrying keys; any shorter
// buffer is decoded as a negative acknowledgement (Keys == nil), with
// bytes past the first 4 ignored.
func DecodeSecureSSSResponse(buf []byte) SecureSSSResponse {
	c := wire.NewReadCursor(buf)
	devID := wire.Id(c.ReadU16())
	op := wire.SSSOp(c.ReadI16())
	if len(buf) < secureSSSSuccessLen {
		return SecureSSSResponse{DevID: devID, Op: op}
	}
	keys := &SessionKeys{}
	copy(keys.AESKey[:], c.ReadBytes(AESKeyLen))
	copy(keys.Seed[:], c.ReadBytes(SeedLen))
	copy(keys.HMACKey[:], c.ReadBytes(HMACKeyLen))
	return SecureSSSResponse{DevID: devID, Op: op, Keys: keys}
}
