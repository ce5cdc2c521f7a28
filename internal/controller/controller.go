// Package controller implements the top-level dispatch state machine: it
// owns the three channels, the single shared buffer, the auth handler,
// and — once registered — a crypto handler, and mediates every message
// the host CPU exchanges with the SSS and with other devices over RAD.
package controller

import (
	"io"
	"log/slog"

	"github.com/kestrel-embedded/fleetlink/internal/auth"
	"github.com/kestrel-embedded/fleetlink/internal/channel"
	"github.com/kestrel-embedded/fleetlink/internal/crypto"
	"github.com/kestrel-embedded/fleetlink/internal/wire"
)

// Controller is the single-threaded dispatch engine. It is not safe for
// concurrent use; the shared buffer and channel handles assume exactly
// one goroutine drives Run.
type Controller struct {
	id       wire.Id
	channels [3]channel.Channel // indexed by wire.Intf
	buf      []byte
	authH    auth.Handler
	cryptoH  crypto.Handler // nil iff unregistered
	log      *slog.Logger
}

// New builds a controller for id, using ch[intf] as the channel for each
// of CPU/SSS/RAD, buf as the shared message buffer (capacity must be at
// least wire.MaxPayloadLen plus the secure envelope's fixed overhead),
// and authH to perform the SSS handshake. The controller starts
// Unregistered.
func New(id wire.Id, ch [3]channel.Channel, buf []byte, authH auth.Handler, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{id: id, channels: ch, buf: buf, authH: authH, log: log}
}

// ID returns this device's own identifier.
func (c *Controller) ID() wire.Id { return c.id }

// Buffer exposes the shared message buffer. Callers (principally auth and
// crypto handlers) must only read or write the portion described by the
// descriptor they were given.
func (c *Controller) Buffer() []byte { return c.buf }

// Registered reports whether a crypto handler is currently installed.
func (c *Controller) Registered() bool { return c.cryptoH != nil }

func (c *Controller) chanFor(intf wire.Intf) channel.Channel {
	return c.channels[intf]
}
