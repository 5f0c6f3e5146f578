package bridge_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtchat/internal/bridge"
	"github.com/1ureka/rtchat/internal/transport"
)

// mockChannel is an in-memory transport.Channel.
type mockChannel struct {
	mu        sync.Mutex
	onClose   func()
	onMessage func(webrtc.DataChannelMessage)
	onError   func(error)
	sent      []string
	closes    int
}

var _ transport.Channel = (*mockChannel)(nil)

func (m *mockChannel) Label() string { return "chat" }

func (m *mockChannel) SendText(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, text)
	return nil
}

func (m *mockChannel) OnOpen(func()) {}

func (m *mockChannel) OnClose(fn func()) {
	m.mu.Lock()
	m.onClose = fn
	m.mu.Unlock()
}

func (m *mockChannel) OnMessage(fn func(webrtc.DataChannelMessage)) {
	m.mu.Lock()
	m.onMessage = fn
	m.mu.Unlock()
}

func (m *mockChannel) OnError(fn func(error)) {
	m.mu.Lock()
	m.onError = fn
	m.mu.Unlock()
}

func (m *mockChannel) Close() error {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()
	return nil
}

func (m *mockChannel) deliver(data []byte, isString bool) {
	m.mu.Lock()
	fn := m.onMessage
	m.mu.Unlock()
	fn(webrtc.DataChannelMessage{IsString: isString, Data: data})
}

func (m *mockChannel) remoteClose() {
	m.mu.Lock()
	fn := m.onClose
	m.mu.Unlock()
	fn()
}

func (m *mockChannel) fail(err error) {
	m.mu.Lock()
	fn := m.onError
	m.mu.Unlock()
	fn(err)
}

func collect(t *testing.T, b *bridge.Bridge) []string {
	t.Helper()
	out := make(chan []string, 1)
	go func() {
		var lines []string
		for line := range b.Lines() {
			lines = append(lines, line)
		}
		out <- lines
	}()
	select {
	case lines := <-out:
		return lines
	case <-time.After(2 * time.Second):
		t.Fatal("Lines did not end")
	}
	return nil
}

func TestSendBeforeOpen(t *testing.T) {
	ch := &mockChannel{}
	b := bridge.New(ch, nil)

	if err := b.Send("hello"); !errors.Is(err, bridge.ErrChannelNotOpen) {
		t.Fatalf("got %v, want ErrChannelNotOpen", err)
	}
	if b.IsOpen() {
		t.Fatal("IsOpen before Open")
	}

	b.Open()
	if err := b.Send("hello"); err != nil {
		t.Fatalf("Send after Open: %v", err)
	}
	if len(ch.sent) != 1 || ch.sent[0] != "hello" {
		t.Fatalf("sent = %v", ch.sent)
	}
}

func TestSendAfterClose(t *testing.T) {
	ch := &mockChannel{}
	b := bridge.New(ch, nil)
	b.Open()
	b.Close()

	if err := b.Send("late"); !errors.Is(err, bridge.ErrChannelNotOpen) {
		t.Fatalf("got %v, want ErrChannelNotOpen", err)
	}

	// Open after close must not revive the bridge.
	b.Open()
	if b.IsOpen() {
		t.Fatal("reopened after close")
	}
}

func TestLinesEndOnRemoteClose(t *testing.T) {
	ch := &mockChannel{}
	b := bridge.New(ch, nil)
	b.Open()

	ch.deliver([]byte("first\n"), true)
	ch.deliver([]byte("second \r\n"), false)
	ch.remoteClose()

	lines := collect(t, b)
	want := []string{"first", "second"}
	if len(lines) != len(want) {
		t.Fatalf("got %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ch := &mockChannel{}
	var notified int
	b := bridge.New(ch, func() { notified++ })

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	ch.remoteClose()

	if ch.closes != 1 {
		t.Fatalf("channel closed %d times", ch.closes)
	}
	if notified != 1 {
		t.Fatalf("onClosed called %d times", notified)
	}
	select {
	case <-b.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestOnErrorForwarded(t *testing.T) {
	ch := &mockChannel{}
	b := bridge.New(ch, nil)

	var got error
	b.OnError(func(err error) { got = err })
	boom := errors.New("sctp reset")
	ch.fail(boom)

	if !errors.Is(got, boom) {
		t.Fatalf("got %v", got)
	}
}

func TestDecodeLine(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"plain", []byte("hello"), "hello"},
		{"trailing newline", []byte("hello\n"), "hello"},
		{"trailing crlf and tabs", []byte("hello \t\r\n"), "hello"},
		{"leading space kept", []byte("  hello"), "  hello"},
		{"unicode", []byte("héllo 世界\n"), "héllo 世界"},
		{"invalid utf8", []byte{'h', 'i', 0xff, 0xfe}, "hi\uFFFD"},
		{"empty", nil, ""},
		{"only whitespace", []byte(" \n\t"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bridge.DecodeLine(tt.in); got != tt.want {
				t.Errorf("DecodeLine(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
