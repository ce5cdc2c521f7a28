package secure

import (
	"bytes"
	"testing"

	"github.com/kestrel-embedded/fleetlink/internal/wire"
)

func TestSecureSSSMessageEncodeWireForm(t *testing.T) {
	var secret [HMACKeyLen]byte
	for i := range secret {
		secret[i] = byte(i + 1)
	}
	msg := SecureSSSMessage{DevID: wire.Id(7), Op: wire.Register, Secret: secret}

	// Simulate the real call site: buf is the controller's shared,
	// reused buffer, so pre-fill it with stale bytes from a prior
	// message to make sure Encode doesn't leave any of them behind.
	buf := make([]byte, secureSSSMessageLen)
	for i := range buf {
		buf[i] = 0xAA
	}

	msg.Encode(buf)

	if len(buf) != secureSSSMessageLen {
		t.Fatalf("buf length = %d, want %d", len(buf), secureSSSMessageLen)
	}

	c := wire.NewReadCursor(buf)
	if got := wire.Id(c.ReadU16()); got != msg.DevID {
		t.Errorf("DevID = %d, want %d", got, msg.DevID)
	}
	if got := wire.SSSOp(c.ReadI16()); got != msg.Op {
		t.Errorf("Op = %d, want %d", got, msg.Op)
	}
	if got := c.ReadBytes(HMACKeyLen); !bytes.Equal(got, secret[:]) {
		t.Errorf("Secret = %x, want %x", got, secret)
	}

	reserved := buf[2+2+HMACKeyLen:]
	if len(reserved) != secureSSSMessageLen-(2+2+HMACKeyLen) {
		t.Fatalf("reserved tail length = %d, want %d", len(reserved), secureSSSMessageLen-(2+2+HMACKeyLen))
	}
	for i, b := range reserved {
		if b != 0 {
			t.Fatalf("reserved byte %d = %#x, want 0 (stale buffer content leaked onto the wire)", i, b)
		}
	}
}
