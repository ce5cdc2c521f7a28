package channel

// Physical base addresses of the three UART peripherals, Stellaris/LM3S
// register layout. These are the addresses a controller board maps CPU,
// SSS and RAD to; a host build never dereferences them (see sim.go).
const (
	cpuBase = 0x4000C000
	sssBase = 0x4000D000
	radBase = 0x4000E000
)

// Register byte offsets within a UART block, including the reserved
// padding the real peripheral expects between FR and ILPR.
const (
	offDR     = 0x00
	offRSR    = 0x04
	offFR     = 0x18
	offILPR   = 0x20
	offIBRD   = 0x24
	offFBRD   = 0x28
	offLCRH   = 0x2C
	offCTL    = 0x30
	offIFLS   = 0x34
	offIM     = 0x38
	offRIS    = 0x3C
	offMIS    = 0x40
	offICR    = 0x44
	offDMACTL = 0x48

	uartBlockSize = 0x4C
)

// Status bits in the FR (flag) register.
const (
	frRXFE uint32 = 1 << 4 // receive FIFO empty
	frTXFF uint32 = 1 << 5 // transmit FIFO full
)

// uartBase returns the physical base address for intf, or false if intf
// does not name a physical UART (there is none for a purely simulated
// channel).
func uartBase(name string) (uintptr, bool) {
	switch name {
	case "CPU":
		return cpuBase, true
	case "SSS":
		return sssBase, true
	case "RAD":
		return radBase, true
	default:
		return 0, false
	}
}
