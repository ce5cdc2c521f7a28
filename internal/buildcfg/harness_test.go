package buildcfg

import (
	"os"
	"path/filepath"
	"testing"
)

func writeHarnessConfig(t *testing.T, dir, yamlBody string) string {
	t.Helper()
	path := filepath.Join(dir, "harness.yaml")
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write harness config: %v", err)
	}
	return path
}

func TestLoadHarnessConfigResolvesRelativeSecretFiles(t *testing.T) {
	tmp := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmp, "peer5.secret"), make([]byte, SecretLen), 0o600); err != nil {
		t.Fatalf("write peer secret: %v", err)
	}

	cfgPath := writeHarnessConfig(t, tmp, `
transport: sim
log:
  debug: true
  level: debug
peers:
  - id: 5
    secret_file: peer5.secret
`)

	cfg, err := LoadHarnessConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadHarnessConfig: %v", err)
	}
	if cfg.Transport != TransportSim {
		t.Errorf("Transport = %q, want %q", cfg.Transport, TransportSim)
	}
	want := filepath.Join(tmp, "peer5.secret")
	if cfg.Peers[0].SecretFile != want {
		t.Errorf("SecretFile = %q, want %q", cfg.Peers[0].SecretFile, want)
	}
}

func TestLoadHarnessConfigDefaultsEmptyTransportToSim(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := writeHarnessConfig(t, tmp, `
log:
  debug: false
`)

	cfg, err := LoadHarnessConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadHarnessConfig: %v", err)
	}
	if cfg.Transport != TransportSim {
		t.Errorf("Transport = %q, want default %q", cfg.Transport, TransportSim)
	}
}

func TestLoadHarnessConfigRejectsUnknownTransport(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := writeHarnessConfig(t, tmp, `
transport: carrier-pigeon
`)

	if _, err := LoadHarnessConfig(cfgPath); err == nil {
		t.Fatalf("LoadHarnessConfig accepted an unknown transport")
	}
}

func TestLoadHarnessConfigRejectsDuplicatePeerIDs(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := writeHarnessConfig(t, tmp, `
transport: sim
peers:
  - id: 5
    secret_file: a.secret
  - id: 5
    secret_file: b.secret
`)

	if _, err := LoadHarnessConfig(cfgPath); err == nil {
		t.Fatalf("LoadHarnessConfig accepted duplicate peer ids")
	}
}

func TestLoadHarnessConfigRejectsUnknownFields(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := writeHarnessConfig(t, tmp, `
transport: sim
bogus_field: true
`)

	if _, err := LoadHarnessConfig(cfgPath); err == nil {
		t.Fatalf("LoadHarnessConfig accepted an unrecognised field")
	}
}

func TestLoadHarnessConfigMissingFile(t *testing.T) {
	if _, err := LoadHarnessConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("LoadHarnessConfig succeeded reading a nonexistent file")
	}
}
