package app

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/1ureka/rtchat/internal/config"
	"github.com/1ureka/rtchat/internal/signaling"
	"github.com/1ureka/rtchat/internal/util"
)

func init() {
	util.SetLogOutput(io.Discard)
}

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitOutput(t *testing.T, out *syncBuffer, want string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("output never contained %q:\n%s", want, out.String())
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		cmd  string
		ok   bool
	}{
		{"/start", "start", true},
		{"  /QUIT  ", "quit", true},
		{"/state now", "state", true},
		{"/", "", false},
		{"hello /start", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		cmd, ok := parseCommand(tt.line)
		if cmd != tt.cmd || ok != tt.ok {
			t.Errorf("parseCommand(%q) = %q, %v; want %q, %v", tt.line, cmd, ok, tt.cmd, tt.ok)
		}
	}
}

func TestNormalizeWSURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"ws://192.168.1.10:4000", "ws://192.168.1.10:4000/ws", false},
		{"wss://abc.devtunnels.ms/ws", "wss://abc.devtunnels.ms/ws", false},
		{"https://abc.devtunnels.ms", "wss://abc.devtunnels.ms/ws", false},
		{"http://localhost:8080/whatever", "ws://localhost:8080/ws", false},
		{"example.com", "wss://example.com/ws", false},
		{"  ws://h:1  ", "ws://h:1/ws", false},
		{"", "", true},
		{"://", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeWSURL(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeWSURL(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeWSURL(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestConsoleSessionReportsMalformedPaste(t *testing.T) {
	cfg := &config.Config{Mode: config.ModeConsole, Label: "chat"}
	out := &syncBuffer{}
	inR, inW := io.Pipe()
	defer inW.Close()

	s := NewSession(cfg, signaling.NewConsole(out), inR, out)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	waitOutput(t, out, "/start", 2*time.Second)

	io.WriteString(inW, "not json\n")
	waitOutput(t, out, "malformed", 2*time.Second)

	io.WriteString(inW, "/state\n")
	waitOutput(t, out, "state: idle", 2*time.Second)

	io.WriteString(inW, "/bogus\n")
	waitOutput(t, out, "unknown command", 2*time.Second)

	io.WriteString(inW, "/quit\n")
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after /quit")
	}
}

// TestChatOverLoopback negotiates two real peer connections over an
// in-process signaling pipe and exchanges one line each way.
func TestChatOverLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping ICE negotiation in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	portA, portB := signaling.NewPipe()
	newCfg := func(role string) *config.Config {
		return &config.Config{
			Mode:        config.ModeRelay,
			Role:        role,
			STUNServers: []string{},
			Loopback:    true,
			Label:       "chat",
		}
	}

	outA, outB := &syncBuffer{}, &syncBuffer{}
	inA, writeA := io.Pipe()
	inB, writeB := io.Pipe()
	defer writeA.Close()
	defer writeB.Close()

	a := NewSession(newCfg("initiator"), portA, inA, outA)
	b := NewSession(newCfg("responder"), portB, inB, outB)

	doneA := make(chan error, 1)
	doneB := make(chan error, 1)
	go func() { doneA <- a.Run(ctx) }()
	go func() { doneB <- b.Run(ctx) }()

	waitOutput(t, outA, "connected", 20*time.Second)
	waitOutput(t, outB, "connected", 20*time.Second)

	io.WriteString(writeA, "hello from a\n")
	waitOutput(t, outB, "hello from a", 5*time.Second)

	io.WriteString(writeB, "hi from b  \n")
	waitOutput(t, outA, "hi from b\n", 5*time.Second)

	io.WriteString(writeA, "/quit\n")
	select {
	case err := <-doneA:
		if err != nil {
			t.Fatalf("session a: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session a did not stop")
	}

	// b sees the channel close and ends on its own.
	select {
	case <-doneB:
	case <-time.After(15 * time.Second):
		t.Fatal("session b did not notice the peer leaving")
	}
}
