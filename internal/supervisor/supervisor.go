package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/channel"
	"github.com/GriffinCanCode/webbridge/internal/logging"
	"github.com/GriffinCanCode/webbridge/internal/shared/id"
	"go.uber.org/zap"
)

// ErrNoExecutable is returned by Launch when Options.Executable is empty.
var ErrNoExecutable = errors.New("renderer executable not configured")

// waitDelay bounds how long Wait blocks on pipes after the process exits.
const waitDelay = 5 * time.Second

// Options configures a renderer process.
type Options struct {
	Executable string
	Args       []string
	Env        []string // appended to the current environment
	Dir        string

	// ChannelOptions apply to the stdin/stdout frame channel.
	ChannelOptions []channel.Option
	Logger         *logging.Logger
	// OnExit is called once with the exit error (nil on a clean exit).
	OnExit func(err error)
}

// Process is a running renderer executable. Frames travel over its
// stdin and stdout; stderr lines are forwarded to the logger.
type Process struct {
	id     id.ProcessID
	cmd    *exec.Cmd
	ch     *channel.Stream
	logger *logging.Logger
	onExit func(error)

	stderrDone chan struct{}
	done       chan struct{}
	mu         sync.Mutex
	err        error
}

// Launch starts the renderer executable. Cancelling ctx kills the process.
func Launch(ctx context.Context, opts Options) (*Process, error) {
	if opts.Executable == "" {
		return nil, ErrNoExecutable
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	cmd := exec.CommandContext(ctx, opts.Executable, opts.Args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", opts.Executable, err)
	}

	pid := id.NewProcessID()
	p := &Process{
		id:         pid,
		cmd:        cmd,
		logger:     logger.With(zap.String("process_id", pid.String()), zap.Int("pid", cmd.Process.Pid)),
		onExit:     opts.OnExit,
		stderrDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
	p.ch = channel.NewStream(stdout, stdin, opts.ChannelOptions...)

	go p.forwardStderr(stderr)
	go p.monitor()

	p.logger.Info("Renderer process started", zap.String("executable", opts.Executable))
	return p, nil
}

// ID returns the process identifier used in logs.
func (p *Process) ID() string { return p.id.String() }

// PID returns the operating system process id.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Channel returns the frame channel over the process's stdin and stdout.
func (p *Process) Channel() channel.Channel { return p.ch }

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err returns the exit error once Done is closed.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Wait blocks until the process exits or ctx is done.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the channel, which ends the renderer's input, and waits for
// the process to exit. The process is killed if ctx ends first.
func (p *Process) Stop(ctx context.Context) error {
	p.ch.Close()
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		p.logger.Warn("Renderer did not exit, killing")
		if err := p.cmd.Process.Kill(); err != nil {
			p.logger.Debug("Kill failed", zap.Error(err))
		}
		<-p.done
		return ctx.Err()
	}
}

func (p *Process) forwardStderr(r io.Reader) {
	defer close(p.stderrDone)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.logger.Info("renderer", zap.String("stderr", scanner.Text()))
	}
}

// monitor waits for the process once its output pipes are drained.
func (p *Process) monitor() {
	<-p.ch.Done()
	<-p.stderrDone
	err := p.cmd.Wait()

	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	close(p.done)

	if err != nil {
		p.logger.Warn("Renderer process exited", zap.Error(err))
	} else {
		p.logger.Info("Renderer process exited")
	}
	if p.onExit != nil {
		p.onExit(err)
	}
}
