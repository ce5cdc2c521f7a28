// Package wire implements the on-wire data model shared by the CPU,
// registration service (SSS) and radio channels: identifiers, the
// transport header, SSS control messages, and the read/write cursors used
// to serialize them over the controller's single shared buffer.
package wire

// Id identifies a participant on the fleet: a specific device, or one of
// the three reserved addresses. The wire encoding is a plain uint16, with
// 0/1/2 reserved for Broadcast/SSS/FAA and every other value naming a
// device.
type Id uint16

const (
	// Broadcast addresses every device on the radio channel.
	Broadcast Id = 0
	// SSSId addresses the off-device registration service.
	SSSId Id = 1
	// FAA addresses the privileged broadcaster exempt from encryption.
	FAA Id = 2
)

// IsBroadcast reports whether id is the broadcast address.
func (id Id) IsBroadcast() bool { return id == Broadcast }

// IsSSS reports whether id addresses the registration service.
func (id Id) IsSSS() bool { return id == SSSId }

// IsFAA reports whether id addresses the privileged broadcaster.
func (id Id) IsFAA() bool { return id == FAA }

// IsOther reports whether id names an ordinary device (anything other
// than Broadcast, SSSId or FAA).
func (id Id) IsOther() bool { return id != Broadcast && id != SSSId && id != FAA }

// Intf names one of the controller's three physical channels.
type Intf int

const (
	CPU Intf = iota
	SSS
	RAD
)

func (i Intf) String() string {
	switch i {
	case CPU:
		return "CPU"
	case SSS:
		return "SSS"
	case RAD:
		return "RAD"
	default:
		return "unknown"
	}
}

// Descriptor is the in-memory message descriptor: source, target and the
// byte length currently occupying the shared buffer. Len is a machine word
// rather than a uint16 so that an encrypted radio payload — which grows
// once the crypto envelope is added — is not limited by the wire length
// field.
type Descriptor struct {
	Src Id
	Tgt Id
	Len int
}
