package signaling

import (
	"context"

	"github.com/1ureka/rtchat/internal/protocol"
)

// Compile-time interface check.
var _ Port = (*PipePort)(nil)

// PipePort is one end of an in-process signaling link. Two linked ends let two
// engines in the same process negotiate without any network signaling.
type PipePort struct {
	peer  *PipePort
	inbox *inbox
}

// NewPipe creates a linked pair: what one end sends, the other receives.
func NewPipe() (a, b *PipePort) {
	a = &PipePort{inbox: newInbox(inboxBufferSize)}
	b = &PipePort{inbox: newInbox(inboxBufferSize)}
	a.peer = b
	b.peer = a
	return a, b
}

func (p *PipePort) Send(ctx context.Context, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return p.peer.inbox.deliver(ctx, string(data))
}

// SendRaw delivers an arbitrary line to the other end, valid or not.
func (p *PipePort) SendRaw(ctx context.Context, line string) error {
	return p.peer.inbox.deliver(ctx, line)
}

func (p *PipePort) Inbound() <-chan string { return p.inbox.ch }

// Close ends both directions.
func (p *PipePort) Close() error {
	p.inbox.close()
	p.peer.inbox.close()
	return nil
}
