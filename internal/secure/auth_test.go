package secure

import (
	"crypto/rand"
	"testing"

	"github.com/kestrel-embedded/fleetlink/internal/channel"
	"github.com/kestrel-embedded/fleetlink/internal/wire"
)

// fakeController is a minimal auth.Controller backed by SimChannels,
// enough to drive AuthHandler's handshake in isolation from the real
// controller package. A SimChannel reads back whatever is written to it,
// so the SSS link uses two: sssOut carries requests to the SSS stub and
// sssChan carries its replies back.
type fakeController struct {
	id      wire.Id
	buf     []byte
	sssChan *channel.SimChannel
	sssOut  *channel.SimChannel
	cpuChan *channel.SimChannel
}

func newFakeController(id wire.Id) *fakeController {
	return &fakeController{
		id:      id,
		buf:     make([]byte, 256),
		sssChan: channel.NewSimChannel(),
		sssOut:  channel.NewSimChannel(),
		cpuChan: channel.NewSimChannel(),
	}
}

func (f *fakeController) ID() wire.Id     { return f.id }
func (f *fakeController) Buffer() []byte { return f.buf }

func (f *fakeController) chanFor(intf wire.Intf) *channel.SimChannel {
	switch intf {
	case wire.SSS:
		return f.sssChan
	case wire.CPU:
		return f.cpuChan
	default:
		panic("fakeController: unsupported interface")
	}
}

func (f *fakeController) ReadMsg(intf wire.Intf, maxLen int) (wire.Descriptor, error) {
	ch := f.chanFor(intf)
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
		return wire.Descriptor{}, err
	}
	hdr := wire.DecodeHeaderBody(hdrBody[:])
	if int(hdr.Len) > maxLen {
		ch.Discard(int(hdr.Len))
		return wire.Descriptor{}, errOversizeMessage
	}
	if err := ch.ReadFull(f.buf[:hdr.Len]); err != nil {
		return wire.Descriptor{}, err
	}
	return wire.Descriptor{Src: hdr.Src, Tgt: hdr.Tgt, Len: int(hdr.Len)}, nil
}

func (f *fakeController) SendMsg(intf wire.Intf, msg wire.Descriptor) error {
	ch := f.chanFor(intf)
	if intf == wire.SSS {
		ch = f.sssOut
	}
	var hdrBuf [wire.HeaderLen]byte
	wire.Header{Tgt: msg.Tgt, Src: msg.Src, Len: uint16(msg.Len)}.Encode(hdrBuf[:])
	ch.Write(hdrBuf[:])
	ch.Write(f.buf[:msg.Len])
	return nil
}

type errOversize struct{}

func (errOversize) Error() string { return "fakeController: oversize message" }

var errOversizeMessage = errOversize{}

// sssStub answers exactly one secure SSS request from fc.sssOut with a
// canned response on fc.sssChan, mirroring the on-device SSS's behavior
// closely enough to exercise AuthHandler's handshake.
func sssStub(t *testing.T, fc *fakeController, success bool, keys SessionKeys) {
	t.Helper()
	ch := fc.sssOut
	buf := make([]byte, 256)

	var hdrBody [6]byte
	for {
		b := ch.DiscardWhile(func(b byte) bool { return b != 'S' })
		_ = b
		next := ch.DiscardWhile(func(b byte) bool { return b == 'S' })
		if next == 'C' {
			break
		}
	}
	if err := ch.ReadFull(hdrBody[:]); err != nil {
		t.Errorf("sssStub: header: %v", err)
		return
	}
	hdr := wire.DecodeHeaderBody(hdrBody[:])
	if err := ch.ReadFull(buf[:hdr.Len]); err != nil {
		t.Errorf("sssStub: body: %v", err)
		return
	}

	c := wire.NewReadCursor(buf[:hdr.Len])
	devID := wire.Id(c.ReadU16())
	op := wire.SSSOp(c.ReadI16())

	var respBuf []byte
	if success {
		respBuf = make([]byte, secureSSSSuccessLen)
		wc := wire.NewWriteCursor(respBuf)
		wc = wc.WriteU16(uint16(devID)).WriteI16(int16(op))
		wc = wc.WriteBytes(keys.AESKey[:]).WriteBytes(keys.Seed[:]).WriteBytes(keys.HMACKey[:])
	} else {
		respBuf = make([]byte, wire.SSSMessageLen)
		wire.SSSMessage{DevID: devID, Op: wire.SSSOp(-2)}.Encode(respBuf)
	}

	var respHdr [wire.HeaderLen]byte
	wire.Header{Tgt: hdr.Src, Src: wire.SSSId, Len: uint16(len(respBuf))}.Encode(respHdr[:])
	fc.sssChan.Write(respHdr[:])
	fc.sssChan.Write(respBuf)
}

func TestAuthHandlerRegisterSuccess(t *testing.T) {
	fc := newFakeController(wire.Id(7))
	var keys SessionKeys
	rand.Read(keys.AESKey[:])
	rand.Read(keys.Seed[:])
	rand.Read(keys.HMACKey[:])

	go sssStub(t, fc, true, keys)

	var secret [HMACKeyLen]byte
	rand.Read(secret[:])
	h := NewAuthHandler(secret)

	cryptoH, ok := h.Register(fc)
	if !ok {
		t.Fatalf("Register failed, want success")
	}
	if cryptoH == nil {
		t.Fatalf("Register returned nil handler on success")
	}

	ackDesc, err := fc.ReadMsg(wire.CPU, wire.SSSMessageLen)
	if err != nil {
		t.Fatalf("reading CPU ack: %v", err)
	}
	ack := wire.DecodeSSSMessage(fc.buf[:ackDesc.Len])
	if ack.Op != wire.Register {
		t.Errorf("CPU ack op = %d, want Register", ack.Op)
	}
}

func TestAuthHandlerRegisterNegativeAck(t *testing.T) {
	fc := newFakeController(wire.Id(9))
	go sssStub(t, fc, false, SessionKeys{})

	var secret [HMACKeyLen]byte
	h := NewAuthHandler(secret)

	if _, ok := h.Register(fc); ok {
		t.Fatalf("Register succeeded on a negative acknowledgement")
	}
}

func TestAuthHandlerDeregisterSuccess(t *testing.T) {
	fc := newFakeController(wire.Id(3))
	go func() {
		buf := make([]byte, 256)
		var hdrBody [6]byte
		for {
			b := fc.sssOut.DiscardWhile(func(b byte) bool { return b != 'S' })
			_ = b
			next := fc.sssOut.DiscardWhile(func(b byte) bool { return b == 'S' })
			if next == 'C' {
				break
			}
		}
		fc.sssOut.ReadFull(hdrBody[:])
		hdr := wire.DecodeHeaderBody(hdrBody[:])
		fc.sssOut.ReadFull(buf[:hdr.Len])

		c := wire.NewReadCursor(buf[:hdr.Len])
		devID := wire.Id(c.ReadU16())

		resp := make([]byte, wire.SSSMessageLen)
		wire.SSSMessage{DevID: devID, Op: wire.Deregister}.Encode(resp)
		var respHdr [wire.HeaderLen]byte
		wire.Header{Tgt: hdr.Src, Src: wire.SSSId, Len: uint16(len(resp))}.Encode(respHdr[:])
		fc.sssChan.Write(respHdr[:])
		fc.sssChan.Write(resp)
	}()

	var secret [HMACKeyLen]byte
	h := NewAuthHandler(secret)
	if !h.Deregister(fc) {
		t.Fatalf("Deregister failed, want success")
	}
}
