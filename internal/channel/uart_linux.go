//go:build linux

package channel

import (
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"
)

// mmapRegisters maps length bytes of physical memory starting at base
// through the already-open /dev/mem file descriptor.
func mmapRegisters(f *os.File, base uintptr, length int) ([]byte, error) {
	pageSize := uintptr(os.Getpagesize())
	aligned := base &^ (pageSize - 1)
	offsetInPage := int(base - aligned)

	mapLen := offsetInPage + length
	region, err := syscall.Mmap(int(f.Fd()), int64(aligned), mapLen,
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return region[offsetInPage : offsetInPage+length], nil
}

// UARTChannel drives a single Stellaris-style UART peripheral mapped from
// /dev/mem at a fixed physical address. This is the real-hardware
// implementation of Channel; internal/controller is otherwise oblivious
// to whether it is talking to this or to a SimChannel.
type UARTChannel struct {
	mem  []byte
	base uintptr
}

// OpenUART maps and initialises the UART peripheral for the named
// interface ("CPU", "SSS" or "RAD"). It programs the fixed baud-rate
// divisors and line control spec'd for this board, then enables the UART.
func OpenUART(name string) (*UARTChannel, error) {
	base, ok := uartBase(name)
	if !ok {
		return nil, fmt.Errorf("channel: no physical UART named %q", name)
	}

	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("channel: open /dev/mem: %w", err)
	}
	defer f.Close()

	mem, err := mmapRegisters(f, base, uartBlockSize)
	if err != nil {
		return nil, fmt.Errorf("channel: mmap UART %s at %#x: %w", name, base, err)
	}

	u := &UARTChannel{mem: mem, base: base}
	u.init()
	return u, nil
}

// init runs the peripheral's documented bring-up sequence: disable,
// program the integer/fractional baud divisors, set the line control,
// then re-enable.
func (u *UARTChannel) init() {
	u.write32(offCTL, u.read32(offCTL)&^0x1)
	u.write32(offIBRD, (u.read32(offIBRD)&0xffff0000)|0x000a)
	u.write32(offFBRD, (u.read32(offFBRD)&0xffff0000)|0x0036)
	u.write32(offLCRH, 0x60)
	u.write32(offCTL, u.read32(offCTL)|0x01)
}

func (u *UARTChannel) read32(off uintptr) uint32 {
	p := (*uint32)(unsafe.Pointer(&u.mem[off]))
	return atomic.LoadUint32(p)
}

func (u *UARTChannel) write32(off uintptr, v uint32) {
	p := (*uint32)(unsafe.Pointer(&u.mem[off]))
	atomic.StoreUint32(p, v)
}

func (u *UARTChannel) Available() bool {
	return u.read32(offFR)&frRXFE == 0
}

func (u *UARTChannel) ReadByte(blocking bool) (byte, error) {
	for !u.Available() {
		if !blocking {
			return 0, ErrNoData
		}
	}
	return byte(u.read32(offDR)), nil
}

func (u *UARTChannel) ReadFull(dst []byte) error {
	for i := range dst {
		b, err := u.ReadByte(true)
		if err != nil {
			return &ErrSomeData{N: i}
		}
		dst[i] = b
	}
	return nil
}

func (u *UARTChannel) Discard(n int) int {
	i := 0
	for ; i < n; i++ {
		if _, err := u.ReadByte(false); err != nil {
			break
		}
	}
	return i
}

func (u *UARTChannel) DiscardWhile(pred func(byte) bool) byte {
	for {
		b, _ := u.ReadByte(true)
		if !pred(b) {
			return b
		}
	}
}

func (u *UARTChannel) Write(buf []byte) {
	for _, b := range buf {
		for u.read32(offFR)&frTXFF != 0 {
		}
		u.write32(offDR, uint32(b))
	}
}
