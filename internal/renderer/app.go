package renderer

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/channel"
	"github.com/GriffinCanCode/webbridge/internal/logging"
	"github.com/GriffinCanCode/webbridge/internal/monitoring"
	"github.com/GriffinCanCode/webbridge/internal/protocol"
	"github.com/GriffinCanCode/webbridge/internal/resource"
	"go.uber.org/zap"
)

// App is the renderer process: it reads host messages from one channel and
// routes them to per-browser controllers. All script work happens on the
// goroutine running Run.
type App struct {
	ch      channel.Channel
	config  Config
	loader  *resource.Loader
	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu       sync.RWMutex
	browsers map[string]*Browser
}

// NewApp creates a renderer bound to ch. loader may be nil when pages are
// never loaded by url.
func NewApp(ch channel.Channel, config Config, loader *resource.Loader, logger *logging.Logger, metrics *monitoring.Metrics) *App {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &App{
		ch:       ch,
		config:   config,
		loader:   loader,
		logger:   logger,
		metrics:  metrics,
		browsers: make(map[string]*Browser),
	}
}

// Run dispatches messages until the channel closes or ctx is cancelled.
// A peer closing the channel is a normal shutdown and returns nil.
func (a *App) Run(ctx context.Context) error {
	defer a.shutdown()

	var err error
	if a.config.QueuedDispatch {
		err = a.runQueued(ctx)
	} else {
		err = a.runInline(ctx)
	}
	if errors.Is(err, channel.ErrClosed) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (a *App) runInline(ctx context.Context) error {
	for {
		env, err := a.ch.Recv(ctx)
		if err != nil {
			return err
		}
		a.Dispatch(env)
	}
}

// runQueued reads on a separate goroutine and dispatches in batches once per tick.
func (a *App) runQueued(ctx context.Context) error {
	queue := channel.NewQueue()
	errc := make(chan error, 1)
	go func() {
		for {
			env, err := a.ch.Recv(ctx)
			if err != nil {
				errc <- err
				return
			}
			queue.Push(env)
		}
	}()

	tick := a.config.TickInterval
	if tick <= 0 {
		tick = DefaultConfig().TickInterval
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.drain(queue)
		case err := <-errc:
			a.drain(queue)
			return err
		}
	}
}

func (a *App) drain(queue *channel.Queue) {
	for _, env := range queue.Drain() {
		a.Dispatch(env)
	}
}

// Dispatch handles one envelope. It must only be called from the Run goroutine.
func (a *App) Dispatch(env protocol.Envelope) {
	switch env.Message.(type) {
	case protocol.Ping:
		a.send(env.BrowserID, protocol.Pong{})
		return
	case protocol.Pong:
		return
	case protocol.BrowserCreated:
		a.createBrowser(env.BrowserID)
		return
	case protocol.BrowserDestroyed:
		a.destroyBrowser(env.BrowserID)
		return
	}

	b, ok := a.Browser(env.BrowserID)
	if !ok {
		a.logger.Debug("Message for unknown browser dropped",
			zap.String("browser", env.BrowserID),
			zap.String("tag", string(env.Message.Tag())))
		return
	}
	b.dispatch(env.Message)
}

func (a *App) createBrowser(id string) {
	a.mu.Lock()
	old := a.browsers[id]
	a.mu.Unlock()
	if old != nil {
		a.logger.Warn("Browser created twice, replacing", zap.String("browser", id))
		old.close()
	}

	b := newBrowser(a, id)
	a.mu.Lock()
	a.browsers[id] = b
	a.mu.Unlock()
	a.logger.Info("Browser created", zap.String("browser", id))
}

func (a *App) destroyBrowser(id string) {
	a.mu.Lock()
	b := a.browsers[id]
	delete(a.browsers, id)
	a.mu.Unlock()

	if b == nil {
		return
	}
	b.close()
	a.logger.Info("Browser destroyed", zap.String("browser", id))
}

// Browser returns the controller for a browser id.
func (a *App) Browser(id string) (*Browser, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.browsers[id]
	return b, ok
}

// BrowserIDs lists live browsers in sorted order.
func (a *App) BrowserIDs() []string {
	a.mu.RLock()
	ids := make([]string, 0, len(a.browsers))
	for id := range a.browsers {
		ids = append(ids, id)
	}
	a.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (a *App) send(browserID string, msg protocol.Message) {
	if err := a.ch.Send(protocol.Envelope{BrowserID: browserID, Message: msg}); err != nil {
		a.logger.Debug("Send to host failed",
			zap.String("browser", browserID),
			zap.String("tag", string(msg.Tag())),
			zap.Error(err))
	}
}

func (a *App) shutdown() {
	a.mu.Lock()
	browsers := a.browsers
	a.browsers = make(map[string]*Browser)
	a.mu.Unlock()

	for _, b := range browsers {
		if b.ctx != nil {
			b.ctx.Destroy()
			b.ctx = nil
		}
	}
}
