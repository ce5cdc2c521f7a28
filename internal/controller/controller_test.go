package controller

import (
	"crypto/rand"
	"testing"

	"github.com/kestrel-embedded/fleetlink/internal/channel"
	"github.com/kestrel-embedded/fleetlink/internal/secure"
	"github.com/kestrel-embedded/fleetlink/internal/wire"
)

// frameMessage builds a complete S,C-framed message: header followed by
// body, ready to Feed onto a SimChannel.
func frameMessage(tgt, src wire.Id, body []byte) []byte {
	buf := make([]byte, wire.HeaderLen+len(body))
	wire.Header{Tgt: tgt, Src: src, Len: uint16(len(body))}.Encode(buf)
	copy(buf[wire.HeaderLen:], body)
	return buf
}

// peekAndRefeed consumes one framed message from ch (resyncing past any
// leading noise) and immediately re-feeds an equivalent freshly framed
// copy, so a test can inspect a message in flight without consuming it
// from the perspective of the eventual reader.
func peekAndRefeed(t *testing.T, ch *channel.SimChannel) wire.Header {
	t.Helper()
	for {
		ch.DiscardWhile(func(b byte) bool { return b != 'S' })
		if ch.DiscardWhile(func(b byte) bool { return b == 'S' }) == 'C' {
			break
		}
	}
	var hdrBody [6]byte
	if err := ch.ReadFull(hdrBody[:]); err != nil {
		t.Fatalf("peekAndRefeed: header: %v", err)
	}
	hdr := wire.DecodeHeaderBody(hdrBody[:])
	body := make([]byte, hdr.Len)
	if err := ch.ReadFull(body); err != nil {
		t.Fatalf("peekAndRefeed: body: %v", err)
	}
	ch.Feed(frameMessage(hdr.Tgt, hdr.Src, body))
	return hdr
}

func randomSessionKeys(t *testing.T) secure.SessionKeys {
	t.Helper()
	var keys secure.SessionKeys
	rand.Read(keys.AESKey[:])
	rand.Read(keys.Seed[:])
	rand.Read(keys.HMACKey[:])
	return keys
}

// duplexSim gives the controller one channel.Channel whose reads come from
// rx and whose writes go to tx. The SSS link needs it because the
// controller and the concurrent SSS goroutine would otherwise both read
// the one SimChannel that their requests and replies are written to.
type duplexSim struct{ rx, tx *channel.SimChannel }

func (d duplexSim) Available() bool                        { return d.rx.Available() }
func (d duplexSim) ReadByte(blocking bool) (byte, error)   { return d.rx.ReadByte(blocking) }
func (d duplexSim) ReadFull(dst []byte) error              { return d.rx.ReadFull(dst) }
func (d duplexSim) Discard(n int) int                      { return d.rx.Discard(n) }
func (d duplexSim) DiscardWhile(pred func(byte) bool) byte { return d.rx.DiscardWhile(pred) }
func (d duplexSim) Write(buf []byte)                       { d.tx.Write(buf) }

// newTestController builds an unregistered controller sharing rad as its
// radio bus, with private CPU and SSS channels.
func newTestController(t *testing.T, id wire.Id, rad *channel.SimChannel) (c *Controller, cpu *channel.SimChannel, sss duplexSim) {
	t.Helper()
	cpu = channel.NewSimChannel()
	sss = duplexSim{rx: channel.NewSimChannel(), tx: channel.NewSimChannel()}
	buf := make([]byte, wire.MaxPayloadLen+secure.VerificationLen+256)
	var secret [secure.HMACKeyLen]byte
	c = New(id, [3]channel.Channel{cpu, sss, rad}, buf, secure.NewAuthHandler(secret), nil)
	return c, cpu, sss
}

// simSSSOnce answers exactly one secure registration request that the
// controller wrote to sss with a canned success response carrying keys,
// playing the role cmd/hostsim's simulated SSS plays for a real harness.
func simSSSOnce(t *testing.T, sss duplexSim, keys secure.SessionKeys) {
	t.Helper()
	ch := sss.tx
	for {
		ch.DiscardWhile(func(b byte) bool { return b != 'S' })
		if ch.DiscardWhile(func(b byte) bool { return b == 'S' }) == 'C' {
			break
		}
	}
	var hdrBody [6]byte
	if err := ch.ReadFull(hdrBody[:]); err != nil {
		t.Errorf("simSSSOnce: header: %v", err)
		return
	}
	hdr := wire.DecodeHeaderBody(hdrBody[:])
	reqBody := make([]byte, hdr.Len)
	if err := ch.ReadFull(reqBody); err != nil {
		t.Errorf("simSSSOnce: body: %v", err)
		return
	}

	req := wire.NewReadCursor(reqBody)
	devID := wire.Id(req.ReadU16())
	op := wire.SSSOp(req.ReadI16())

	resp := make([]byte, 120)
	wc := wire.NewWriteCursor(resp)
	wc = wc.WriteU16(uint16(devID)).WriteI16(int16(op))
	wc = wc.WriteBytes(keys.AESKey[:]).WriteBytes(keys.Seed[:]).WriteBytes(keys.HMACKey[:])

	sss.rx.Feed(frameMessage(hdr.Src, wire.SSSId, resp))
}

// newRegisteredController drives a full registration handshake
// synchronously (a concurrent goroutine plays the SSS side) and returns
// a controller already Registered with keys.
func newRegisteredController(t *testing.T, id wire.Id, rad *channel.SimChannel, keys secure.SessionKeys) (c *Controller, cpu *channel.SimChannel) {
	t.Helper()
	c, cpu, sss := newTestController(t, id, rad)

	reqBody := make([]byte, wire.SSSMessageLen)
	wire.SSSMessage{DevID: id, Op: wire.Register}.Encode(reqBody)
	cpu.Feed(frameMessage(wire.SSSId, id, reqBody))

	go simSSSOnce(t, sss, keys)

	desc, err := c.ReadMsg(wire.CPU, wire.MaxPayloadLen)
	if err != nil {
		t.Fatalf("reading registration request: %v", err)
	}
	c.handleRegistration(desc, false)
	if !c.Registered() {
		t.Fatalf("controller %d failed to register", id)
	}

	// Drain the ack the handshake wrote back to CPU so the channel
	// starts empty for the scenario proper.
	if _, err := c.ReadMsg(wire.CPU, wire.SSSMessageLen); err != nil {
		t.Fatalf("draining registration ack: %v", err)
	}
	return c, cpu
}

// S1 — Registration success.
func TestDispatchRegistrationSuccess(t *testing.T) {
	rad := channel.NewSimChannel()
	c, cpu, sss := newTestController(t, wire.Id(7), rad)
	keys := randomSessionKeys(t)

	reqBody := make([]byte, wire.SSSMessageLen)
	wire.SSSMessage{DevID: wire.Id(7), Op: wire.Register}.Encode(reqBody)
	cpu.Feed(frameMessage(wire.SSSId, wire.Id(7), reqBody))

	go simSSSOnce(t, sss, keys)

	desc, err := c.ReadMsg(wire.CPU, wire.MaxPayloadLen)
	if err != nil {
		t.Fatalf("reading CPU registration request: %v", err)
	}
	if !desc.Tgt.IsSSS() {
		t.Fatalf("request target = %d, want SSS", desc.Tgt)
	}
	c.handleRegistration(desc, false)

	if !c.Registered() {
		t.Fatalf("controller not Registered after a successful handshake")
	}

	ackDesc, err := c.ReadMsg(wire.CPU, wire.SSSMessageLen)
	if err != nil {
		t.Fatalf("reading registration ack: %v", err)
	}
	ack := wire.DecodeSSSMessage(c.Buffer()[:ackDesc.Len])
	if ack.DevID != wire.Id(7) || ack.Op != wire.Register {
		t.Errorf("ack = %+v, want {DevID:7 Op:Register}", ack)
	}
}

// S2 — Direct send, encrypted.
func TestDispatchDirectSendEncrypted(t *testing.T) {
	rad := channel.NewSimChannel()
	keys := randomSessionKeys(t)
	sender, cpuSender := newRegisteredController(t, wire.Id(5), rad, keys)
	receiver, cpuReceiver := newRegisteredController(t, wire.Id(9), rad, keys)

	cpuSender.Feed(frameMessage(wire.Id(9), wire.Id(5), []byte("AB!")))
	sender.dispatchFromCPU()

	hdr := peekAndRefeed(t, rad)
	if hdr.Len != 56+48 {
		t.Errorf("RAD envelope length = %d, want 104 (56 verification + 48 ciphertext)", hdr.Len)
	}

	receiver.dispatchFromRAD()

	desc, err := receiver.ReadMsg(wire.CPU, wire.MaxPayloadLen)
	if err != nil {
		t.Fatalf("decrypted message not forwarded to CPU: %v", err)
	}
	if desc.Src != wire.Id(5) || desc.Tgt != wire.Id(9) {
		t.Errorf("desc = %+v, want Src=5 Tgt=9", desc)
	}
	if got := string(receiver.Buffer()[:desc.Len]); got != "AB!" {
		t.Errorf("decrypted body = %q, want %q", got, "AB!")
	}
	_ = cpuReceiver
}

// S3 — Replay rejected.
func TestDispatchReplayRejected(t *testing.T) {
	rad := channel.NewSimChannel()
	keys := randomSessionKeys(t)
	receiver, cpuReceiver, _ := newTestController(t, wire.Id(9), rad)
	receiver.cryptoH = secure.NewHandler(keys)

	sender := secure.NewHandler(keys)
	senderID, receiverID := wire.Id(5), wire.Id(9)

	encode := func(text string) []byte {
		body := []byte(text)
		buf := make([]byte, secure.VerificationLen+64+len(body))
		copy(buf, body)
		n := sender.Encrypt(buf, wire.Descriptor{Src: senderID, Tgt: receiverID, Len: len(body)})
		return append([]byte(nil), buf[:n]...)
	}

	envFirst := encode("first")   // ctr=1
	envSecond := encode("second") // ctr=2

	rad.Feed(frameMessage(receiverID, senderID, envFirst))
	receiver.dispatchFromRAD()
	desc, err := receiver.ReadMsg(wire.CPU, wire.MaxPayloadLen)
	if err != nil || string(receiver.Buffer()[:desc.Len]) != "first" {
		t.Fatalf("first message not delivered: desc=%+v err=%v", desc, err)
	}

	rad.Feed(frameMessage(receiverID, senderID, envSecond))
	receiver.dispatchFromRAD()
	if _, err := receiver.ReadMsg(wire.CPU, wire.MaxPayloadLen); err != nil {
		t.Fatalf("second message not delivered: %v", err)
	}

	// Re-inject the captured ctr=1 envelope. The receiver has since
	// committed ctr=2 from this peer, so it must be rejected and
	// nothing forwarded to CPU.
	rad.Feed(frameMessage(receiverID, senderID, envFirst))
	receiver.dispatchFromRAD()
	if cpuReceiver.Available() {
		t.Fatalf("CPU received a forwarded message for a replayed envelope")
	}
}

// S4 — FAA pass-through.
func TestDispatchFAAPassThrough(t *testing.T) {
	rad := channel.NewSimChannel()
	c, _, _ := newTestController(t, wire.Id(5), rad)

	rad.Feed(frameMessage(wire.Id(5), wire.FAA, []byte("hello world")))
	c.dispatchFromRAD()

	desc, err := c.ReadMsg(wire.CPU, wire.MaxPayloadLen)
	if err != nil {
		t.Fatalf("FAA message not forwarded: %v", err)
	}
	if desc.Src != wire.FAA || desc.Tgt != wire.Id(5) {
		t.Errorf("desc = %+v, want Src=FAA Tgt=5", desc)
	}
	if got := string(c.Buffer()[:desc.Len]); got != "hello world" {
		t.Errorf("body = %q, want %q (unchanged, no crypto handler consulted)", got, "hello world")
	}
}

// S5 — Broadcast send then receive.
func TestDispatchBroadcastSendThenReceive(t *testing.T) {
	rad := channel.NewSimChannel()
	keys := randomSessionKeys(t)
	a, cpuA, _ := newTestController(t, wire.Id(5), rad)
	b, _, _ := newTestController(t, wire.Id(9), rad)
	a.cryptoH = secure.NewHandler(keys)
	b.cryptoH = secure.NewHandler(keys)

	cpuA.Feed(frameMessage(wire.Broadcast, wire.Id(5), []byte("ping")))
	a.dispatchFromCPU()
	b.dispatchFromRAD()

	desc, err := b.ReadMsg(wire.CPU, wire.MaxPayloadLen)
	if err != nil {
		t.Fatalf("broadcast not forwarded to peer's CPU: %v", err)
	}
	if desc.Src != wire.Id(5) || desc.Tgt != wire.Broadcast {
		t.Errorf("desc = %+v, want Src=5 Tgt=Broadcast", desc)
	}
	if got := string(b.Buffer()[:desc.Len]); got != "ping" {
		t.Errorf("body = %q, want %q", got, "ping")
	}
}

// S6 — Malformed header resynchronisation.
func TestDispatchMalformedHeaderResync(t *testing.T) {
	rad := channel.NewSimChannel()
	c, cpu, _ := newTestController(t, wire.Id(1), rad)

	var hdrTail [6]byte
	wire.NewWriteCursor(hdrTail[:]).WriteU16(uint16(wire.Id(5))).WriteU16(0).WriteU16(0)
	cpu.Feed([]byte{'S', 'S', 'S', 'S', 'C'})
	cpu.Feed(hdrTail[:])

	desc, err := c.ReadMsg(wire.CPU, wire.MaxPayloadLen)
	if err != nil {
		t.Fatalf("ReadMsg after noisy resync: %v", err)
	}
	want := wire.Descriptor{Src: 0, Tgt: wire.Id(5), Len: 0}
	if desc != want {
		t.Errorf("desc = %+v, want %+v", desc, want)
	}
}
