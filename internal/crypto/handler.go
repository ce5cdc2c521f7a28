// Package crypto declares the pluggable cryptography contract the
// controller invokes for every non-exempt radio message. A concrete
// implementation lives in internal/secure.
package crypto

import "github.com/kestrel-embedded/fleetlink/internal/wire"

// Handler is owned by the controller exactly while a device is
// registered. It is mutable and stateful (counters, RNG) and must never
// be shared between sessions.
type Handler interface {
	// VerificationLen reports how many leading bytes of a radio payload
	// belong to the verification segment, before any ciphertext.
	VerificationLen() int

	// Verify inspects the verification segment already read into buf,
	// plus the header context in msg, and reports whether the remainder
	// of the message should be received and decrypted. It must not
	// mutate state in a way a later dropped message would compromise.
	Verify(buf []byte, msg wire.Descriptor) bool

	// Encrypt transforms the cleartext of length msg.Len at the front of
	// buf into a radio-format envelope in place and returns the new
	// length. It must not fail.
	Encrypt(buf []byte, msg wire.Descriptor) int

	// Decrypt is the inverse of Encrypt. It returns the cleartext length
	// and true, or false if authenticity or integrity checks fail.
	Decrypt(buf []byte, msg wire.Descriptor) (int, bool)
}
