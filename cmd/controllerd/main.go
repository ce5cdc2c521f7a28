// Command controllerd is the firmware entrypoint: it wires either real
// memory-mapped UART channels or the in-process simulator to a
// controller instance and runs its dispatch loop forever.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kestrel-embedded/fleetlink/internal/buildcfg"
	"github.com/kestrel-embedded/fleetlink/internal/channel"
	"github.com/kestrel-embedded/fleetlink/internal/controller"
	"github.com/kestrel-embedded/fleetlink/internal/diag"
	"github.com/kestrel-embedded/fleetlink/internal/secure"
	"github.com/kestrel-embedded/fleetlink/internal/wire"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "controllerd",
	Short: "Bridges the CPU, registration service, and radio channels of a fleet device",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a harness YAML config (optional, defaults to the sim transport)")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable the semihosted diagnostic trace")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := diag.New(debug, slog.LevelDebug)

	cfg := &buildcfg.HarnessConfig{Transport: buildcfg.TransportSim}
	if configPath != "" {
		loaded, err := buildcfg.LoadHarnessConfig(configPath)
		if err != nil {
			return fmt.Errorf("controllerd: %w", err)
		}
		cfg = loaded
	}

	id := buildcfg.LoadIdentity(log)

	channels, err := openChannels(cfg.Transport)
	if err != nil {
		return fmt.Errorf("controllerd: %w", err)
	}

	buf := make([]byte, wire.MaxPayloadLen+secure.VerificationLen+256)
	authH := secure.NewAuthHandler(id.Secret)

	c := controller.New(id.ID, channels, buf, authH, log)
	log.Info("controller starting", "id", uint16(id.ID), "transport", cfg.Transport)
	c.Run()
	return nil
}

func openChannels(t buildcfg.Transport) ([3]channel.Channel, error) {
	var out [3]channel.Channel

	switch t {
	case buildcfg.TransportUART:
		for intf, name := range [3]string{"CPU", "SSS", "RAD"} {
			ch, err := channel.OpenUART(name)
			if err != nil {
				return out, err
			}
			out[intf] = ch
		}
	case buildcfg.TransportSim:
		out[wire.CPU] = channel.NewSimChannel()
		out[wire.SSS] = channel.NewSimChannel()
		out[wire.RAD] = channel.NewSimChannel()
	default:
		return out, fmt.Errorf("unknown transport %q", t)
	}
	return out, nil
}
