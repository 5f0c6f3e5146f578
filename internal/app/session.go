package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pterm/pterm"

	"github.com/1ureka/rtchat/internal/bridge"
	"github.com/1ureka/rtchat/internal/config"
	"github.com/1ureka/rtchat/internal/negotiation"
	"github.com/1ureka/rtchat/internal/signaling"
	"github.com/1ureka/rtchat/internal/transport"
	"github.com/1ureka/rtchat/internal/util"
)

const maxInputLine = 1 << 20 // bundled descriptions are long single lines

// Session runs one chat over an already open signaling port. Terminal lines
// are routed to the engine (commands, pasted signals) until the data channel
// opens, then to the peer.
type Session struct {
	cfg  *config.Config
	port signaling.Port
	in   io.Reader
	out  io.Writer

	newTransport func() (transport.Handle, error)

	outMu sync.Mutex // serializes writes to out

	connected chan *bridge.Bridge
	closed    chan error
}

// NewSession prepares a session. It takes ownership of port.
func NewSession(cfg *config.Config, port signaling.Port, in io.Reader, out io.Writer) *Session {
	return &Session{
		cfg:  cfg,
		port: port,
		in:   in,
		out:  out,
		newTransport: func() (transport.Handle, error) {
			peer, err := transport.NewPeer(cfg.TransportOptions())
			if err != nil {
				return nil, err
			}
			return peer, nil
		},
		connected: make(chan *bridge.Bridge, 1),
		closed:    make(chan error, 1),
	}
}

// Run negotiates, then chats until the input ends, ctx is cancelled, or the
// connection closes. In console mode a closed connection may be retried.
func (s *Session) Run(ctx context.Context) error {
	defer s.port.Close()

	role, err := s.cfg.NegotiationRole()
	if err != nil {
		return err
	}

	engine := negotiation.New(negotiation.Options{
		Signal:       s.port,
		NewTransport: s.newTransport,
		Policy:       s.cfg.CandidatePolicy(),
		Label:        s.cfg.Label,
		OnState: func(state negotiation.State) {
			util.LogDebug("negotiation state: %s", state)
		},
		OnReport: func(err error) {
			s.printf("%s %v\n", pterm.Yellow("!"), err)
		},
		OnConnected: func(b *bridge.Bridge) {
			select {
			case s.connected <- b:
			default:
			}
		},
		OnClosed: func(err error) {
			select {
			case s.closed <- err:
			default:
			}
		},
	})
	defer engine.Shutdown()

	go s.pumpSignals(engine)

	if s.cfg.StatsInterval > 0 {
		util.StartStatsReporter(ctx, s.cfg.StatsInterval)
	}

	switch role {
	case negotiation.RoleInitiator, negotiation.RoleResponder:
		if err := engine.Start(role); err != nil {
			return err
		}
	case negotiation.RoleNone:
		s.printf("Type /start to create an offer, or paste the peer's offer.\n")
	}

	input := s.readInput()
	var current *bridge.Bridge

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-input:
			if !ok {
				return nil
			}
			quit, err := s.handleInput(ctx, engine, current, line)
			if err != nil {
				s.printf("%s %v\n", pterm.Red("x"), err)
			}
			if quit {
				return nil
			}

		case b := <-s.connected:
			current = b
			s.printf("%s connected on %q, type a message and press enter (/quit to leave)\n",
				pterm.Green("✓"), b.Label())
			go s.printLines(b)

		case err := <-s.closed:
			current = nil
			if s.cfg.Mode != config.ModeConsole {
				if err != nil {
					return err
				}
				util.LogInfo("peer left")
				return nil
			}
			if err != nil {
				s.printf("%s negotiation aborted: %v\n", pterm.Red("x"), err)
			}
			s.printf("Connection closed. /start or paste an offer to try again.\n")
		}
	}
}

// handleInput routes one terminal line.
func (s *Session) handleInput(ctx context.Context, engine *negotiation.Engine, b *bridge.Bridge, line string) (quit bool, err error) {
	if cmd, ok := parseCommand(line); ok {
		switch cmd {
		case "quit", "exit":
			return true, nil
		case "start":
			return false, engine.Start(negotiation.RoleInitiator)
		case "close":
			return false, engine.Close()
		case "state":
			s.printf("state: %s, role: %s\n", engine.State(), engine.Role())
			return false, nil
		default:
			return false, fmt.Errorf("unknown command /%s (try /start, /close, /state or /quit)", cmd)
		}
	}

	if b != nil {
		return false, b.Send(line)
	}

	if console, ok := s.port.(*signaling.Console); ok {
		if strings.TrimSpace(line) == "" {
			return false, nil
		}
		return false, console.Deliver(ctx, line)
	}
	return false, bridge.ErrChannelNotOpen
}

// pumpSignals feeds every inbound signaling line to the engine. Failures are
// already reported through OnReport.
func (s *Session) pumpSignals(engine *negotiation.Engine) {
	for raw := range s.port.Inbound() {
		err := engine.HandleRemoteMessage(raw)
		if errors.Is(err, negotiation.ErrStopped) {
			return
		}
	}
	util.LogDebug("signaling port closed")
}

func (s *Session) printLines(b *bridge.Bridge) {
	for line := range b.Lines() {
		s.printf("%s %s\n", pterm.Cyan("peer>"), line)
	}
}

// readInput scans terminal lines on its own goroutine.
func (s *Session) readInput() <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxInputLine)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			util.LogWarning("reading input: %v", err)
		}
	}()
	return lines
}

func (s *Session) printf(format string, args ...interface{}) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

// parseCommand recognizes "/name" lines.
func parseCommand(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") || len(line) < 2 {
		return "", false
	}
	return strings.ToLower(strings.Fields(line[1:])[0]), true
}
