package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/GriffinCanCode/webbridge/internal/protocol"
	"go.uber.org/zap"
)

// Stream carries newline-delimited frames over a byte stream, such as the
// stdin/stdout pipes of a child process.
type Stream struct {
	opts  options
	inbox *mailbox

	wmu sync.Mutex
	w   io.Writer

	closers []io.Closer
	once    sync.Once
}

// NewStream starts reading frames from r and writes outgoing frames to w.
// If r or w implement io.Closer they are closed by Close.
func NewStream(r io.Reader, w io.Writer, opts ...Option) *Stream {
	s := &Stream{
		opts:  buildOptions(opts),
		inbox: newMailbox(),
		w:     w,
	}
	if c, ok := w.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
	if c, ok := r.(io.Closer); ok && (len(s.closers) == 0 || s.closers[0] != c) {
		s.closers = append(s.closers, c)
	}
	go s.readLoop(r)
	return s
}

func (s *Stream) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	limit := s.opts.maxFrameBytes + 1
	scanner.Buffer(make([]byte, 0, min(64*1024, limit)), limit)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if env, ok := s.opts.decode(line); ok {
			s.inbox.deliver(env)
		}
	}

	err := scanner.Err()
	switch {
	case err == nil:
		err = io.EOF
	case errors.Is(err, bufio.ErrTooLong):
		s.opts.logger.Error("Inbound frame too large, closing stream", zap.Int("limit", s.opts.maxFrameBytes))
		err = fmt.Errorf("%w: %v", ErrFrameTooLarge, err)
	default:
		s.opts.logger.Debug("Stream reader stopped", zap.Error(err))
	}
	s.inbox.shut(err)
}

// Send writes one frame followed by a newline.
func (s *Stream) Send(env protocol.Envelope) error {
	if s.inbox.closed() {
		return ErrClosed
	}
	data, err := s.opts.encode(env)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.wmu.Lock()
	_, err = s.w.Write(data)
	s.wmu.Unlock()
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	s.opts.sent(env.Message.Tag())
	return nil
}

// Recv returns the next decoded frame. After the reader hits EOF, queued
// frames are still returned before io.EOF.
func (s *Stream) Recv(ctx context.Context) (protocol.Envelope, error) {
	return s.inbox.recv(ctx)
}

func (s *Stream) Done() <-chan struct{} {
	return s.inbox.done
}

// Close closes the underlying reader and writer when they are closable.
func (s *Stream) Close() error {
	var errs []error
	s.once.Do(func() {
		s.inbox.shut(ErrClosed)
		for _, c := range s.closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
