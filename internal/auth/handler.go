// Package auth declares the registration/deregistration contract the
// controller delegates to while talking to the SSS. A concrete
// implementation lives in internal/secure.
package auth

import (
	"github.com/kestrel-embedded/fleetlink/internal/crypto"
	"github.com/kestrel-embedded/fleetlink/internal/wire"
)

// Controller is the minimal capability surface an auth Handler needs from
// the controller: its own id, the shared buffer, and framed read/write
// over a named interface. It is carved out separately from the concrete
// controller type so internal/auth and internal/secure never import
// internal/controller.
type Controller interface {
	ID() wire.Id
	Buffer() []byte
	ReadMsg(intf wire.Intf, maxLen int) (wire.Descriptor, error)
	SendMsg(intf wire.Intf, msg wire.Descriptor) error
}

// Handler has no persistent state beyond a static per-device secret; it
// performs the SSS handshake using the controller's channels and buffer.
type Handler interface {
	// Register performs the full registration handshake. On success it
	// returns a new crypto.Handler and true.
	Register(c Controller) (crypto.Handler, bool)

	// Deregister performs deregistration and reports whether the SSS
	// confirmed it.
	Deregister(c Controller) bool
}
