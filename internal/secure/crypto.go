package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/kestrel-embedded/fleetlink/internal/wire"
)

func aesCBCEncrypt(key, iv, data []byte) ([]byte, error) {
	if len(data)%16 != 0 {
		return nil, fmt.Errorf("secure: CBC encrypt: data not block aligned")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

func aesCBCDecrypt(key, iv, data []byte) ([]byte, error) {
	if len(data)%16 != 0 {
		return nil, fmt.Errorf("secure: CBC decrypt: data not block aligned")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

func padPKCS7(data []byte) []byte {
	padLen := 16 - (len(data) % 16)
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

func unpadPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%16 != 0 {
		return nil, errors.New("secure: bad padding length")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > 16 || padLen > len(data) {
		return nil, errors.New("secure: bad padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("secure: bad padding")
		}
	}
	return data[:len(data)-padLen], nil
}

// Handler is the concrete crypto.Handler for a registered session.
// It is single-owner, single-threaded, matching the controller's
// dispatch model.
type Handler struct {
	aesKey  [AESKeyLen]byte
	hmacKey [HMACKeyLen]byte
	rng     *keystreamRNG

	outboundDirect *peerCounters // keyed by target, for direct sends
	inboundDirect  *peerCounters // keyed by source, for direct receives
	broadcast      *peerCounters // keyed by the broadcasting peer, both directions
}

// NewHandler builds a crypto.Handler from the session keys a successful
// registration delivered.
func NewHandler(keys SessionKeys) *Handler {
	return &Handler{
		aesKey:         keys.AESKey,
		hmacKey:        keys.HMACKey,
		rng:            newKeystreamRNG(keys.Seed),
		outboundDirect: newPeerCounters(),
		inboundDirect:  newPeerCounters(),
		broadcast:      newPeerCounters(),
	}
}

// VerificationLen reports the fixed 56-byte verification segment size.
func (h *Handler) VerificationLen() int { return VerificationLen }

func (h *Handler) transportHeader(msg wire.Descriptor, totalLen int) []byte {
	var buf [wire.HeaderLen]byte
	wire.Header{Tgt: msg.Tgt, Src: msg.Src, Len: uint16(totalLen)}.Encode(buf[:])
	return buf[:]
}

func (h *Handler) inboundCounters(tgt wire.Id) *peerCounters {
	if tgt.IsBroadcast() {
		return h.broadcast
	}
	return h.inboundDirect
}

// Verify checks the verification segment already read into buf against
// the declared header context in msg (msg.Len is the declared total body
// length). It rejects malformed lengths, replayed counters, and bad
// HMACs, and never commits counter state.
func (h *Handler) Verify(buf []byte, msg wire.Descriptor) bool {
	if (msg.Len-VerificationLen)%16 != 0 {
		return false
	}

	c := wire.NewReadCursor(buf)
	iv := c.ReadBytes(ivLen)
	ctr := c.ReadU64()
	tag := c.ReadBytes(hmacLen)

	counters := h.inboundCounters(msg.Tgt)
	if ctr < counters.prev(msg.Src) {
		return false
	}

	mac := hmac.New(sha256.New, h.hmacKey[:])
	mac.Write(h.transportHeader(msg, msg.Len))
	mac.Write(iv)
	var ctrBuf [ctrLen]byte
	wire.NewWriteCursor(ctrBuf[:]).WriteU64(ctr)
	mac.Write(ctrBuf[:])

	return hmac.Equal(mac.Sum(nil), tag)
}

// Encrypt transforms the cleartext of length msg.Len at the front of buf
// into a radio-format envelope in place, returning the new length.
func (h *Handler) Encrypt(buf []byte, msg wire.Descriptor) int {
	l := msg.Len
	sha := sha256.Sum256(buf[:l])

	copy(buf[VerificationLen+contentHeaderLen:], buf[:l])
	var hdr [contentHeaderLen]byte
	wire.NewWriteCursor(hdr[:]).WriteBytes(sha[:]).WriteU64(uint64(l))
	copy(buf[VerificationLen:], hdr[:])

	var ctr uint64
	if msg.Tgt.IsBroadcast() {
		ctr = h.broadcast.next(msg.Src)
	} else {
		ctr = h.outboundDirect.next(msg.Tgt)
	}

	iv := h.rng.Next(ivLen)
	plain := buf[VerificationLen : VerificationLen+contentHeaderLen+l]
	cipherText, err := aesCBCEncrypt(h.aesKey[:], iv, padPKCS7(plain))
	if err != nil {
		// Encrypt must not fail; a key-size mismatch here is a
		// programming error, not a runtime condition to recover from.
		panic(err)
	}
	copy(buf[VerificationLen:], cipherText)
	newLen := VerificationLen + len(cipherText)

	mac := hmac.New(sha256.New, h.hmacKey[:])
	mac.Write(h.transportHeader(msg, newLen))
	mac.Write(iv)
	var ctrBuf [ctrLen]byte
	wire.NewWriteCursor(ctrBuf[:]).WriteU64(ctr)
	mac.Write(ctrBuf[:])
	tag := mac.Sum(nil)

	wire.NewWriteCursor(buf).WriteBytes(iv).WriteBytes(ctrBuf[:]).WriteBytes(tag)

	return newLen
}

// Decrypt is the inverse of Encrypt. buf holds the full envelope
// (verification segment already verified by Verify, encrypted segment
// following it) up to msg.Len bytes.
func (h *Handler) Decrypt(buf []byte, msg wire.Descriptor) (int, bool) {
	ctrCursor := wire.NewReadCursor(buf[ivLen:])
	ctr := ctrCursor.ReadU64()

	counters := h.inboundCounters(msg.Tgt)
	counters.commit(msg.Src, ctr)

	iv := buf[:ivLen]
	cipherText := buf[VerificationLen:msg.Len]
	plain, err := aesCBCDecrypt(h.aesKey[:], iv, cipherText)
	if err != nil {
		return 0, false
	}
	plain, err = unpadPKCS7(plain)
	if err != nil {
		return 0, false
	}
	if len(plain) < contentHeaderLen {
		return 0, false
	}

	c := wire.NewReadCursor(plain)
	sha := c.ReadBytes(shaLen)
	msgLen := c.ReadU64()
	if msgLen > uint64(len(plain)-contentHeaderLen) {
		return 0, false
	}

	clear := plain[contentHeaderLen : contentHeaderLen+int(msgLen)]
	got := sha256.Sum256(clear)
	if !hmac.Equal(got[:], sha) {
		return 0, false
	}

	copy(buf, clear)
	return int(msgLen), true
}
