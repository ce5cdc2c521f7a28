// Package buildcfg resolves the two kinds of configuration this
// controller needs: build-time device identity (read from the
// environment at process start, standing in for the original firmware's
// link-time constant embedding) and an optional YAML harness config for
// everything that is not baked into the device itself.
package buildcfg

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/kestrel-embedded/fleetlink/internal/wire"
)

const (
	envDeviceID   = "FLEETLINK_ID"
	envSecretFile = "FLEETLINK_SECRET_FILE"
)

// SecretLen is the wire size of the per-device shared secret.
const SecretLen = 64

// Identity is this device's build-time identity: its SSS-assigned id and
// its shared secret. Either half defaults to zero when the corresponding
// environment input is absent, matching the firmware's "absent either,
// the build substitutes zeros and emits a warning" policy.
type Identity struct {
	ID     wire.Id
	Secret [SecretLen]byte
}

// LoadIdentity reads FLEETLINK_ID and FLEETLINK_SECRET_FILE from the
// environment. Missing or malformed input degrades to zero values with a
// warning logged through log, rather than a fatal error — a device that
// never registers is safer than one that fails to boot.
func LoadIdentity(log *slog.Logger) Identity {
	var id Identity

	raw := os.Getenv(envDeviceID)
	if raw == "" {
		log.Warn("device identifier not set at build time, defaulting to 0", "env", envDeviceID)
	} else if n, err := strconv.ParseUint(raw, 10, 16); err != nil {
		log.Warn("device identifier malformed, defaulting to 0", "env", envDeviceID, "value", raw, "error", err)
	} else {
		id.ID = wire.Id(n)
	}

	path := os.Getenv(envSecretFile)
	if path == "" {
		log.Warn("secret file path not set at build time, defaulting to zero secret", "env", envSecretFile)
		return id
	}
	b, err := os.ReadFile(path)
	if err != nil {
		log.Warn("secret file unreadable, defaulting to zero secret", "env", envSecretFile, "path", path, "error", err)
		return id
	}
	if len(b) != SecretLen {
		log.Warn("secret file has unexpected length, defaulting to zero secret", "path", path, "want", SecretLen, "got", len(b))
		return id
	}
	copy(id.Secret[:], b)
	return id
}
