package channel

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/webbridge/internal/protocol"
)

// Pipe is one end of an in-memory channel pair. Frames still go through the
// codec, so a pipe peer sees exactly what a process peer would.
type Pipe struct {
	opts  options
	inbox *mailbox
	peer  *Pipe
	once  *sync.Once
}

// NewPipe returns two connected ends. Closing either end closes both.
func NewPipe(opts ...Option) (*Pipe, *Pipe) {
	o := buildOptions(opts)
	once := &sync.Once{}
	a := &Pipe{opts: o, inbox: newMailbox(), once: once}
	b := &Pipe{opts: o, inbox: newMailbox(), once: once}
	a.peer, b.peer = b, a
	return a, b
}

// Send encodes env and delivers it to the peer's inbox.
func (p *Pipe) Send(env protocol.Envelope) error {
	if p.inbox.closed() {
		return ErrClosed
	}
	data, err := p.opts.encode(env)
	if err != nil {
		return err
	}
	p.opts.sent(env.Message.Tag())
	if decoded, ok := p.peer.opts.decode(data); ok {
		p.peer.inbox.deliver(decoded)
	}
	return nil
}

// Recv returns the next envelope sent by the peer.
func (p *Pipe) Recv(ctx context.Context) (protocol.Envelope, error) {
	return p.inbox.recv(ctx)
}

func (p *Pipe) Done() <-chan struct{} {
	return p.inbox.done
}

// Close shuts both ends.
func (p *Pipe) Close() error {
	p.once.Do(func() {
		p.inbox.shut(ErrClosed)
		p.peer.inbox.shut(ErrClosed)
	})
	return nil
}
