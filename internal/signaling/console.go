package signaling

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pterm/pterm"

	"github.com/1ureka/rtchat/internal/protocol"
)

// Compile-time interface check.
var _ Port = (*Console)(nil)

// Console is copy-paste signaling: outgoing messages are printed for the user
// to hand to the peer, and whatever the user pastes back is fed in with Deliver.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	inbox *inbox
}

// NewConsole prints outgoing messages to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w, inbox: newInbox(inboxBufferSize)}
}

// Send prints msg as a single line between copy markers.
func (c *Console) Send(_ context.Context, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	header := pterm.FgCyan.Sprint("---- Please copy the line below to the peer ----")
	_, err = fmt.Fprintf(c.w, "\n%s\n%s\n\n", header, data)
	return err
}

// Deliver hands one pasted line to the engine side.
func (c *Console) Deliver(ctx context.Context, line string) error {
	return c.inbox.deliver(ctx, line)
}

func (c *Console) Inbound() <-chan string { return c.inbox.ch }

func (c *Console) Close() error {
	c.inbox.close()
	return nil
}
