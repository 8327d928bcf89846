package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/GriffinCanCode/webbridge/internal/logging"
	"github.com/GriffinCanCode/webbridge/internal/protocol"
	"go.uber.org/zap"
)

var (
	ErrClosed        = errors.New("channel closed")
	ErrFrameTooLarge = errors.New("frame exceeds size limit")
)

// DefaultMaxFrameBytes bounds a single encoded frame.
const DefaultMaxFrameBytes = 4 << 20

// Channel is an ordered, fire-and-forget message pipe to one peer process.
// Send never waits for the peer to act on a message. Recv is meant for a
// single consumer goroutine.
type Channel interface {
	Send(env protocol.Envelope) error
	Recv(ctx context.Context) (protocol.Envelope, error)
	// Done is closed once the channel can no longer deliver messages.
	Done() <-chan struct{}
	Close() error
}

// Option configures a transport.
type Option func(*options)

type options struct {
	logger        *logging.Logger
	maxFrameBytes int
	onDecodeError func(error)
	onFrame       func(dir string, tag protocol.Tag)
}

func defaultOptions() options {
	return options{
		logger:        logging.NewNop(),
		maxFrameBytes: DefaultMaxFrameBytes,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used for dropped frames and transport errors.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxFrameBytes caps the size of a single frame in either direction.
func WithMaxFrameBytes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFrameBytes = n
		}
	}
}

// WithDecodeErrorHook is called for every inbound frame that fails to decode.
// Such frames are dropped.
func WithDecodeErrorHook(fn func(error)) Option {
	return func(o *options) { o.onDecodeError = fn }
}

// WithFrameHook observes every frame sent ("out") or received ("in").
func WithFrameHook(fn func(dir string, tag protocol.Tag)) Option {
	return func(o *options) { o.onFrame = fn }
}

func (o *options) sent(tag protocol.Tag) {
	if o.onFrame != nil {
		o.onFrame("out", tag)
	}
}

// decode turns a raw inbound frame into an envelope, logging and dropping
// anything malformed.
func (o *options) decode(data []byte) (protocol.Envelope, bool) {
	env, err := protocol.Decode(data)
	if err != nil {
		o.logger.Warn("Dropping malformed frame", zap.Error(err), zap.Int("bytes", len(data)))
		if o.onDecodeError != nil {
			o.onDecodeError(err)
		}
		return protocol.Envelope{}, false
	}
	if o.onFrame != nil {
		o.onFrame("in", env.Message.Tag())
	}
	return env, true
}

func (o *options) encode(env protocol.Envelope) ([]byte, error) {
	data, err := protocol.Encode(env)
	if err != nil {
		return nil, err
	}
	if len(data) > o.maxFrameBytes {
		return nil, ErrFrameTooLarge
	}
	return data, nil
}

// mailbox buffers decoded envelopes between a transport's reader goroutine
// and the single Recv consumer.
type mailbox struct {
	queue   *Queue
	pending []protocol.Envelope

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

func newMailbox() *mailbox {
	return &mailbox{
		queue: NewQueue(),
		done:  make(chan struct{}),
	}
}

func (m *mailbox) deliver(env protocol.Envelope) {
	m.queue.Push(env)
}

// shut marks the mailbox finished. Already queued envelopes stay readable.
func (m *mailbox) shut(err error) {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.err = err
		m.mu.Unlock()
		close(m.done)
	})
}

func (m *mailbox) closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

func (m *mailbox) cause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err == nil {
		return ErrClosed
	}
	return m.err
}

func (m *mailbox) recv(ctx context.Context) (protocol.Envelope, error) {
	for {
		if len(m.pending) > 0 {
			env := m.pending[0]
			m.pending = m.pending[1:]
			return env, nil
		}
		if batch := m.queue.Drain(); len(batch) > 0 {
			m.pending = batch
			continue
		}
		select {
		case <-m.queue.Ready():
		case <-m.done:
			if batch := m.queue.Drain(); len(batch) > 0 {
				m.pending = batch
				continue
			}
			return protocol.Envelope{}, m.cause()
		case <-ctx.Done():
			return protocol.Envelope{}, ctx.Err()
		}
	}
}
