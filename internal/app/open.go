// Package app contains the top-level orchestration: opening the signaling
// port for the chosen mode and running one chat session over it.
package app

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/rtchat/internal/config"
	"github.com/1ureka/rtchat/internal/signaling"
	"github.com/1ureka/rtchat/internal/util"
)

const pinLength = 4

// OpenPort establishes the signaling port for cfg.Mode. It blocks until the
// peer is reachable (host mode waits for the peer to dial in).
func OpenPort(ctx context.Context, cfg *config.Config, out io.Writer) (signaling.Port, error) {
	switch cfg.Mode {
	case config.ModeConsole:
		return signaling.NewConsole(out), nil

	case config.ModeHost:
		return openHost(ctx, cfg, out)

	case config.ModeJoin:
		wsURL, err := NormalizeWSURL(cfg.URL)
		if err != nil {
			return nil, err
		}
		util.LogInfo("connecting to %s", wsURL)
		port, err := signaling.Dial(ctx, wsURL+"?pin="+url.QueryEscape(cfg.PIN))
		if err != nil {
			return nil, err
		}
		util.LogSuccess("connected to host")
		return port, nil

	case config.ModeRelay:
		port, room, err := signaling.JoinRelay(ctx, cfg.URL, cfg.Room)
		if err != nil {
			return nil, err
		}
		if cfg.Room == "" {
			pterm.Fprintln(out, pterm.DefaultBox.WithTitle("Relay room").Sprintf(
				"Room : %s\nPeer : rtchat --mode relay --url %s --room %s", room, cfg.URL, room))
		}
		util.LogSuccess("joined relay room %s", room)
		return port, nil

	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

func openHost(ctx context.Context, cfg *config.Config, out io.Writer) (signaling.Port, error) {
	pin := cfg.PIN
	if pin == "" {
		generated, err := signaling.GeneratePIN(pinLength)
		if err != nil {
			return nil, err
		}
		pin = generated
	}

	server := signaling.NewServer(pin)
	wsPort, err := server.Start(cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	defer server.Close()

	pterm.Fprintln(out, pterm.DefaultBox.WithTitle("WebSocket signaling").Sprintf(
		"Port : %d\nPIN  : %s\nPeer : rtchat --mode join --url ws://<this-host>:%d --pin %s",
		wsPort, pin, wsPort, pin))
	util.LogInfo("waiting for the peer to connect...")

	port, err := server.WaitForPeer(ctx)
	if err != nil {
		return nil, fmt.Errorf("waiting for peer: %w", err)
	}
	util.LogSuccess("peer connected")
	return port, nil
}

// NormalizeWSURL validates a host or URL and turns it into the signaling
// endpoint, e.g. "example.com" -> "wss://example.com/ws".
func NormalizeWSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	scheme := "wss"
	switch u.Scheme {
	case "ws", "http":
		scheme = "ws"
	}
	return fmt.Sprintf("%s://%s/ws", scheme, u.Host), nil
}
