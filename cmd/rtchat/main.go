// rtchat: a two-party chat over a WebRTC data channel.
//
// The peers exchange an offer, an answer and ICE candidates over a signaling
// channel of your choice (copy-paste, a direct WebSocket, or a relay), then
// talk directly. Without --mode it asks interactively.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/1ureka/rtchat/internal/app"
	"github.com/1ureka/rtchat/internal/config"
	"github.com/1ureka/rtchat/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		util.LogError("%v", err)
		os.Exit(2)
	}

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("rtchat v%s", version))
	pterm.Println()

	if cfg.Mode == "" {
		runInteractive(cfg)
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("invalid configuration: %v", err)
		os.Exit(2)
	}

	port, err := app.OpenPort(ctx, cfg, os.Stdout)
	if err != nil {
		util.LogError("failed to open signaling: %v", err)
		os.Exit(1)
	}

	if err := app.NewSession(cfg, port, os.Stdin, os.Stdout).Run(ctx); err != nil {
		util.LogError("chat ended: %v", err)
		os.Exit(1)
	}

	util.LogInfo("chat closed")
}

// ---------------------------------------------------------------------------
// Interactive prompts
// ---------------------------------------------------------------------------

var modeOptions = map[string]config.Mode{
	"Console : copy and paste the signaling lines yourself": config.ModeConsole,
	"Host    : wait for the peer to dial this machine":      config.ModeHost,
	"Join    : dial a peer that is hosting":                 config.ModeJoin,
	"Relay   : meet the peer in a room on a relay server":   config.ModeRelay,
}

// runInteractive fills in the mode and what it needs when no --mode flag is given.
func runInteractive(cfg *config.Config) {
	options := make([]string, 0, len(config.Modes))
	for _, mode := range config.Modes {
		for label, m := range modeOptions {
			if m == mode {
				options = append(options, label)
			}
		}
	}

	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions(options).
		WithDefaultText("Select how to reach your peer").
		Show()
	cfg.Mode = modeOptions[choice]
	pterm.Println()

	switch cfg.Mode {
	case config.ModeJoin:
		if cfg.URL == "" {
			cfg.URL = askURL()
		}
		if cfg.PIN == "" {
			cfg.PIN = askText("PIN shown on the host")
		}
	case config.ModeRelay:
		if cfg.URL == "" {
			cfg.URL = askText("Relay URL (e.g. http://relay.example.com:8090)")
		}
		if cfg.Room == "" {
			cfg.Room = askOptional("Room id (leave empty to create a new room)")
		}
	}
}

// askURL prompts for a WebSocket URL until a valid one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("WebSocket URL (e.g. ws://192.168.1.10:4000)").
			Show()

		wsURL, err := app.NormalizeWSURL(raw)
		if err == nil {
			pterm.Println()
			return wsURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

// askText prompts until a non-empty answer is entered.
func askText(prompt string) string {
	for {
		if v := askOptional(prompt); v != "" {
			return v
		}
		util.LogWarning("a value is required")
	}
}

func askOptional(prompt string) string {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(prompt).
		Show()
	pterm.Println()
	return strings.TrimSpace(raw)
}
