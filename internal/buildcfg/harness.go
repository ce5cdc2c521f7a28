package buildcfg

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Transport selects which channel backend a harness process should use.
type Transport string

const (
	TransportUART Transport = "uart"
	TransportSim  Transport = "sim"
)

// HarnessConfig describes the non-build-time knobs for cmd/controllerd
// and cmd/hostsim: which transport backend to wire up, a simulated peer
// roster, and logging verbosity. cmd/controllerd applies only Transport;
// cmd/hostsim loads and validates the file but applies none of its
// fields, and neither command reads Log or Peers.
type HarnessConfig struct {
	Transport Transport    `yaml:"transport"`
	Log       LogConfig    `yaml:"log"`
	Peers     []PeerConfig `yaml:"peers"`
}

// LogConfig controls the diagnostic trace.
type LogConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"`
}

// PeerConfig describes one simulated peer device: its id and the path of
// its shared secret file.
type PeerConfig struct {
	ID         int    `yaml:"id"`
	SecretFile string `yaml:"secret_file"`
}

// LoadHarnessConfig reads and validates a YAML harness config at path.
// Relative paths named inside the file (currently only peer secret
// files) resolve against the config file's own directory, not the
// process's working directory.
func LoadHarnessConfig(path string) (*HarnessConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("buildcfg: read harness config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg HarnessConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("buildcfg: parse harness config: %w", err)
	}
	cfg.resolvePaths(path)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *HarnessConfig) resolvePaths(configPath string) {
	dir := filepath.Dir(configPath)
	for i := range c.Peers {
		c.Peers[i].SecretFile = resolvePath(dir, c.Peers[i].SecretFile)
	}
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}

func (c *HarnessConfig) validate() error {
	switch c.Transport {
	case TransportUART, TransportSim:
	case "":
		c.Transport = TransportSim
	default:
		return fmt.Errorf("buildcfg: unknown transport %q (must be %q or %q)", c.Transport, TransportUART, TransportSim)
	}
	seen := make(map[int]bool, len(c.Peers))
	for i, p := range c.Peers {
		if seen[p.ID] {
			return fmt.Errorf("buildcfg: duplicate peer id %d at entry %d", p.ID, i)
		}
		seen[p.ID] = true
	}
	return nil
}
