package buildcfg

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/kestrel-embedded/fleetlink/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadIdentityValid(t *testing.T) {
	tmp := t.TempDir()
	secretPath := filepath.Join(tmp, "secret.bin")
	secret := make([]byte, SecretLen)
	for i := range secret {
		secret[i] = byte(i)
	}
	if err := os.WriteFile(secretPath, secret, 0o600); err != nil {
		t.Fatalf("write secret file: %v", err)
	}

	t.Setenv(envDeviceID, "42")
	t.Setenv(envSecretFile, secretPath)

	id := LoadIdentity(discardLogger())
	if id.ID != wire.Id(42) {
		t.Errorf("ID = %d, want 42", id.ID)
	}
	if string(id.Secret[:]) != string(secret) {
		t.Errorf("Secret mismatch")
	}
}

func TestLoadIdentityMissingEnvDefaultsToZero(t *testing.T) {
	t.Setenv(envDeviceID, "")
	t.Setenv(envSecretFile, "")

	id := LoadIdentity(discardLogger())
	if id.ID != 0 {
		t.Errorf("ID = %d, want 0", id.ID)
	}
	var zero [SecretLen]byte
	if id.Secret != zero {
		t.Errorf("Secret = %v, want all zero", id.Secret)
	}
}

func TestLoadIdentityMalformedIDDefaultsToZero(t *testing.T) {
	t.Setenv(envDeviceID, "not-a-number")
	t.Setenv(envSecretFile, "")

	id := LoadIdentity(discardLogger())
	if id.ID != 0 {
		t.Errorf("ID = %d, want 0 for malformed input", id.ID)
	}
}

func TestLoadIdentityWrongSecretLengthDefaultsToZero(t *testing.T) {
	tmp := t.TempDir()
	secretPath := filepath.Join(tmp, "secret.bin")
	if err := os.WriteFile(secretPath, []byte("too short"), 0o600); err != nil {
		t.Fatalf("write secret file: %v", err)
	}

	t.Setenv(envDeviceID, "")
	t.Setenv(envSecretFile, secretPath)

	id := LoadIdentity(discardLogger())
	var zero [SecretLen]byte
	if id.Secret != zero {
		t.Errorf("Secret = %v, want all zero for an undersized file", id.Secret)
	}
}

func TestLoadIdentityUnreadableSecretFileDefaultsToZero(t *testing.T) {
	t.Setenv(envDeviceID, "")
	t.Setenv(envSecretFile, filepath.Join(t.TempDir(), "does-not-exist.bin"))

	id := LoadIdentity(discardLogger())
	var zero [SecretLen]byte
	if id.Secret != zero {
		t.Errorf("Secret = %v, want all zero when the secret file is missing", id.Secret)
	}
}
