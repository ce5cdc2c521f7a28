package secure

import (
	"crypto/rand"
	"testing"

	"github.com/kestrel-embedded/fleetlink/internal/wire"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	var keys SessionKeys
	if _, err := rand.Read(keys.AESKey[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	if _, err := rand.Read(keys.Seed[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	if _, err := rand.Read(keys.HMACKey[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return NewHandler(keys)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	sender := newTestHandler(t)
	receiver := &Handler{
		aesKey:         sender.aesKey,
		hmacKey:        sender.hmacKey,
		rng:            sender.rng,
		outboundDirect: newPeerCounters(),
		inboundDirect:  newPeerCounters(),
		broadcast:      newPeerCounters(),
	}

	plain := []byte("hello fleet, this is a direct message")
	buf := make([]byte, VerificationLen+contentHeaderLen+len(plain)+16)
	copy(buf, plain)

	msg := wire.Descriptor{Src: wire.Id(7), Tgt: wire.Id(42), Len: len(plain)}
	newLen := sender.Encrypt(buf, msg)

	envelope := wire.Descriptor{Src: msg.Src, Tgt: msg.Tgt, Len: newLen}
	if !receiver.Verify(buf[:VerificationLen], envelope) {
		t.Fatalf("Verify rejected a freshly encrypted envelope")
	}

	clearLen, ok := receiver.Decrypt(buf, envelope)
	if !ok {
		t.Fatalf("Decrypt failed on a freshly encrypted envelope")
	}
	if string(buf[:clearLen]) != string(plain) {
		t.Fatalf("decrypted = %q, want %q", buf[:clearLen], plain)
	}
}

func TestVerifyRejectsReplayAfterHigherCounterSeen(t *testing.T) {
	sender := newTestHandler(t)
	receiver := &Handler{
		aesKey: sender.aesKey, hmacKey: sender.hmacKey, rng: sender.rng,
		outboundDirect: newPeerCounters(), inboundDirect: newPeerCounters(), broadcast: newPeerCounters(),
	}

	plain := []byte("ctr=1 message")
	buf := make([]byte, VerificationLen+contentHeaderLen+len(plain)+16)
	copy(buf, plain)
	msg := wire.Descriptor{Src: wire.Id(3), Tgt: wire.Id(1), Len: len(plain)}
	n := sender.Encrypt(buf, msg)
	envelope := wire.Descriptor{Src: msg.Src, Tgt: msg.Tgt, Len: n}
	captured := append([]byte(nil), buf[:n]...)

	if !receiver.Verify(captured[:VerificationLen], envelope) {
		t.Fatalf("Verify rejected the first legitimate message")
	}

	// Simulate the receiver having since processed a later message
	// (counter 2) from the same peer.
	receiver.inboundDirect.commit(wire.Id(3), 2)

	if receiver.Verify(captured[:VerificationLen], envelope) {
		t.Fatalf("Verify accepted a replayed message whose counter trails the last-seen one")
	}
}

func TestVerifyRejectsBadLengthAlignment(t *testing.T) {
	h := newTestHandler(t)
	buf := make([]byte, VerificationLen)
	msg := wire.Descriptor{Src: wire.Id(1), Tgt: wire.Id(2), Len: VerificationLen + 5}
	if h.Verify(buf, msg) {
		t.Fatalf("Verify accepted a non-block-aligned declared length")
	}
}

func TestVerifyRejectsTamperedHMAC(t *testing.T) {
	sender := newTestHandler(t)
	receiver := &Handler{
		aesKey: sender.aesKey, hmacKey: sender.hmacKey, rng: sender.rng,
		outboundDirect: newPeerCounters(), inboundDirect: newPeerCounters(), broadcast: newPeerCounters(),
	}

	plain := []byte("tamper me")
	buf := make([]byte, VerificationLen+contentHeaderLen+len(plain)+16)
	copy(buf, plain)
	msg := wire.Descriptor{Src: wire.Id(5), Tgt: wire.Id(6), Len: len(plain)}
	n := sender.Encrypt(buf, msg)
	buf[VerificationLen-1] ^= 0xFF // flip a byte inside the HMAC tag

	envelope := wire.Descriptor{Src: msg.Src, Tgt: msg.Tgt, Len: n}
	if receiver.Verify(buf[:VerificationLen], envelope) {
		t.Fatalf("Verify accepted a tampered HMAC")
	}
}

func TestBroadcastRoundTrip(t *testing.T) {
	sender := newTestHandler(t)
	receiver := &Handler{
		aesKey: sender.aesKey, hmacKey: sender.hmacKey, rng: sender.rng,
		outboundDirect: newPeerCounters(), inboundDirect: newPeerCounters(), broadcast: newPeerCounters(),
	}

	plain := []byte("broadcast to the fleet")
	buf := make([]byte, VerificationLen+contentHeaderLen+len(plain)+16)
	copy(buf, plain)
	msg := wire.Descriptor{Src: wire.Id(11), Tgt: wire.Broadcast, Len: len(plain)}
	n := sender.Encrypt(buf, msg)

	envelope := wire.Descriptor{Src: msg.Src, Tgt: wire.Broadcast, Len: n}
	if !receiver.Verify(buf[:VerificationLen], envelope) {
		t.Fatalf("Verify rejected a broadcast envelope")
	}
	clearLen, ok := receiver.Decrypt(buf, envelope)
	if !ok || string(buf[:clearLen]) != string(plain) {
		t.Fatalf("broadcast round trip failed: ok=%v clearLen=%d", ok, clearLen)
	}
}

func TestPKCS7PadUnpadRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 15, 16, 17, 40} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i)
		}
		padded := padPKCS7(data)
		if len(padded)%16 != 0 {
			t.Fatalf("padded length %d not block aligned for input len %d", len(padded), n)
		}
		got, err := unpadPKCS7(padded)
		if err != nil {
			t.Fatalf("unpad: %v", err)
		}
		if string(got) != string(data) {
			t.Errorf("pad/unpad round trip for len %d mismatched", n)
		}
	}
}

func TestUnpadPKCS7RejectsBadPadding(t *testing.T) {
	bad := make([]byte, 16)
	if _, err := unpadPKCS7(bad); err == nil {
		t.Fatalf("unpad accepted all-zero padding")
	}
}
