package wire

import "testing"

func TestIdClassification(t *testing.T) {
	cases := []struct {
		id                             Id
		broadcast, sss, faa, other bool
	}{
		{Broadcast, true, false, false, false},
		{SSSId, false, true, false, false},
		{FAA, false, false, true, false},
		{Id(42), false, false, false, true},
	}
	for _, c := range cases {
		if got := c.id.IsBroadcast(); got != c.broadcast {
			t.Errorf("Id(%d).IsBroadcast() = %v, want %v", c.id, got, c.broadcast)
		}
		if got := c.id.IsSSS(); got != c.sss {
			t.Errorf("Id(%d).IsSSS() = %v, want %v", c.id, got, c.sss)
		}
		if got := c.id.IsFAA(); got != c.faa {
			t.Errorf("Id(%d).IsFAA() = %v, want %v", c.id, got, c.faa)
		}
		if got := c.id.IsOther(); got != c.other {
			t.Errorf("Id(%d).IsOther() = %v, want %v", c.id, got, c.other)
		}
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Tgt: Id(100), Src: Id(7), Len: 1234}
	var buf [HeaderLen]byte
	h.Encode(buf[:])

	if buf[0] != 'S' || buf[1] != 'C' {
		t.Fatalf("header does not begin with magic bytes: %v", buf[:2])
	}

	got := DecodeHeaderBody(buf[2:])
	if got != h {
		t.Fatalf("DecodeHeaderBody round trip = %+v, want %+v", got, h)
	}
}

func TestSSSMessageRoundTrip(t *testing.T) {
	for _, op := range []SSSOp{Already, Register, Deregister, SSSOp(99)} {
		m := SSSMessage{DevID: Id(9), Op: op}
		var buf [SSSMessageLen]byte
		m.Encode(buf[:])
		got := DecodeSSSMessage(buf[:])
		if got != m {
			t.Errorf("SSSMessage round trip for op %d = %+v, want %+v", op, got, m)
		}
	}
}

func TestSSSOpIsUnknown(t *testing.T) {
	for _, op := range []SSSOp{Already, Register, Deregister} {
		if op.IsUnknown() {
			t.Errorf("op %d should be known", op)
		}
	}
	if !SSSOp(7).IsUnknown() {
		t.Errorf("op 7 should be unknown")
	}
}

func TestCursorChaining(t *testing.T) {
	buf := make([]byte, 16)
	c := NewWriteCursor(buf)
	c = c.WriteU16(0xABCD).WriteI16(-5).WriteU64(0x0102030405060708)

	rc := NewReadCursor(buf)
	if got := rc.ReadU16(); got != 0xABCD {
		t.Errorf("ReadU16 = %#x, want 0xABCD", got)
	}
	if got := rc.ReadI16(); got != -5 {
		t.Errorf("ReadI16 = %d, want -5", got)
	}
	if got := rc.ReadU64(); got != 0x0102030405060708 {
		t.Errorf("ReadU64 = %#x, want 0x0102030405060708", got)
	}
}

func TestWriteBytesAndReadBytes(t *testing.T) {
	payload := []byte("hello, fleetlink")
	buf := make([]byte, len(payload))
	NewWriteCursor(buf).WriteBytes(payload)

	rc := NewReadCursor(buf)
	got := rc.ReadBytes(len(payload))
	if string(got) != string(payload) {
		t.Errorf("ReadBytes = %q, want %q", got, payload)
	}
}
