// Command hostsim is an interactive operator console that plays the
// host CPU (and a stub SSS) against an in-process controller instance,
// for manual exploration of the registration and message-dispatch
// behavior without real hardware.
package main

import (
	"bufio"
	"crypto/rand"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/kestrel-embedded/fleetlink/internal/buildcfg"
	"github.com/kestrel-embedded/fleetlink/internal/channel"
	"github.com/kestrel-embedded/fleetlink/internal/controller"
	"github.com/kestrel-embedded/fleetlink/internal/diag"
	"github.com/kestrel-embedded/fleetlink/internal/secure"
	"github.com/kestrel-embedded/fleetlink/internal/wire"
)

func main() {
	deviceID := flag.Int("id", 7, "device id hostsim drives the controller as")
	configPath := flag.String("config", "", "path to a harness YAML config (optional)")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	log := diag.New(*verbose, slog.LevelDebug)

	if *configPath != "" {
		if _, err := buildcfg.LoadHarnessConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "hostsim: %v\n", err)
			os.Exit(1)
		}
	}

	// The CPU interface needs independent transmit and receive queues.
	// A lone SimChannel is a single shared FIFO (Write feeds the same
	// buffer ReadByte drains), which is fine when exactly one external
	// party sends a command and drains its reply in turn, but breaks the
	// moment two goroutines read it concurrently: the controller's
	// dispatch loop (consuming operator commands) and the console's
	// display loop (consuming the controller's own replies) would race
	// over the same bytes, each liable to steal the other's message.
	// cpuIn carries console -> controller traffic, cpuOut carries
	// controller -> console traffic; duplexChannel glues the pair into
	// the single Channel the controller expects for wire.CPU.
	cpuIn := channel.NewSimChannel()
	cpuOut := channel.NewSimChannel()
	sss := channel.NewSimChannel()
	rad := channel.NewSimChannel()
	cpu := duplexChannel{rx: cpuIn, tx: cpuOut}

	var secret [64]byte
	_, _ = rand.Read(secret[:])
	authH := secure.NewAuthHandler(secret)

	buf := make([]byte, wire.MaxPayloadLen+secure.VerificationLen+256)
	ctrl := controller.New(wire.Id(*deviceID), [3]channel.Channel{cpu, sss, rad}, buf, authH, log)

	var sessionKeys secure.SessionKeys
	_, _ = rand.Read(sessionKeys.AESKey[:])
	_, _ = rand.Read(sessionKeys.Seed[:])
	_, _ = rand.Read(sessionKeys.HMACKey[:])

	go simSSS(sss, sessionKeys, log)
	go ctrl.Run()
	go printInbound(cpuOut, log)

	fmt.Println("=== FleetLink Controller Host Simulator ===")
	fmt.Printf("Driving controller id=%d\n\n", *deviceID)

	runConsole(cpuIn, wire.Id(*deviceID))
}

// duplexChannel pairs an rx and a tx SimChannel behind a single
// channel.Channel, so a caller that needs one interface's reads and
// writes to stay on independent queues (see main, above) can still hand
// the controller one value for wire.CPU.
type duplexChannel struct {
	rx *channel.SimChannel
	tx *channel.SimChannel
}

func (d duplexChannel) Available() bool                       { return d.rx.Available() }
func (d duplexChannel) ReadByte(blocking bool) (byte, error)   { return d.rx.ReadByte(blocking) }
func (d duplexChannel) ReadFull(dst []byte) error              { return d.rx.ReadFull(dst) }
func (d duplexChannel) Discard(n int) int                      { return d.rx.Discard(n) }
func (d duplexChannel) DiscardWhile(pred func(byte) bool) byte { return d.rx.DiscardWhile(pred) }
func (d duplexChannel) Write(buf []byte)                       { d.tx.Write(buf) }

func runConsole(cpu *channel.SimChannel, selfID wire.Id) {
	reader := bufio.NewReader(os.Stdin)
	for {
		choice := selectMenu("Choose an action:", []string{
			"Register with SSS",
			"Deregister from SSS",
			"Send message to a peer",
			"Quit",
		})

		switch choice {
		case 0:
			sendSSSOp(cpu, selfID, wire.Register)
		case 1:
			sendSSSOp(cpu, selfID, wire.Deregister)
		case 2:
			fmt.Print("Target peer id: ")
			line, _ := reader.ReadString('\n')
			tgt, err := strconv.Atoi(strings.TrimSpace(line))
			if err != nil {
				fmt.Println("invalid id")
				continue
			}
			fmt.Print("Message text: ")
			text, _ := reader.ReadString('\n')
			text = strings.TrimRight(text, "\n")
			writeFramed(cpu, selfID, wire.Id(tgt), []byte(text))
		default:
			return
		}
	}
}

func sendSSSOp(cpu *channel.SimChannel, selfID wire.Id, op wire.SSSOp) {
	var body [wire.SSSMessageLen]byte
	wire.SSSMessage{DevID: selfID, Op: op}.Encode(body[:])
	writeFramed(cpu, selfID, wire.SSSId, body[:])
}

func printInbound(cpu *channel.SimChannel, log *slog.Logger) {
	buf := make([]byte, wire.MaxPayloadLen+secure.VerificationLen+256)
	for {
		desc, err := readFramed(cpu, buf)
		if err != nil {
			continue
		}
		fmt.Printf("\r\n<< from %d to %d: %q\r\n", uint16(desc.Src), uint16(desc.Tgt), string(buf[:desc.Len]))
	}
}

// selectMenu renders items and lets the operator pick one with the arrow
// keys and Enter, returning the chosen index.
func selectMenu(prompt string, items []string) int {
	if len(items) == 0 {
		return -1
	}

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "hostsim: raw mode: %v\r\n", err)
		return -1
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	selected := 0
	fmt.Printf("%s\r\n", prompt)
	for i, item := range items {
		marker := " "
		if i == selected {
			marker = ">"
		}
		fmt.Printf("%s %s\r\n", marker, item)
	}

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return -1
		}

		if n == 1 {
			switch buf[0] {
			case 0x0D, 0x0A:
				fmt.Printf("\r\n")
				return selected
			case 0x03:
				term.Restore(int(os.Stdin.Fd()), oldState)
				os.Exit(0)
			}
			continue
		}
		if n == 3 && buf[0] == 0x1B && buf[1] == '[' {
			moved := false
			switch buf[2] {
			case 'A':
				if selected > 0 {
					selected--
					moved = true
				}
			case 'B':
				if selected < len(items)-1 {
					selected++
					moved = true
				}
			}
			if moved {
				fmt.Printf("\033[%dA", len(items))
				for i, item := range items {
					fmt.Print("\033[2K\r")
					marker := " "
					if i == selected {
						marker = ">"
					}
					fmt.Printf("%s %s\r\n", marker, item)
				}
			}
		}
	}
}
