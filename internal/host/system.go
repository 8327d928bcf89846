package host

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/channel"
	"github.com/GriffinCanCode/webbridge/internal/logging"
	"github.com/GriffinCanCode/webbridge/internal/monitoring"
	"github.com/GriffinCanCode/webbridge/internal/protocol"
	"go.uber.org/zap"
)

// System owns the channel to one renderer process and the browsers living
// in it. Inbound messages are routed to browsers by id.
type System struct {
	ch      channel.Channel
	config  Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	queue   *channel.Queue
	seq     atomic.Uint64

	mu       sync.RWMutex
	browsers map[string]*Browser
}

// NewSystem creates a System speaking over ch. metrics may be nil.
func NewSystem(ch channel.Channel, config Config, logger *logging.Logger, metrics *monitoring.Metrics) *System {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &System{
		ch:       ch,
		config:   config,
		logger:   logger,
		metrics:  metrics,
		queue:    channel.NewQueue(),
		browsers: make(map[string]*Browser),
	}
}

// CreateBrowser announces a new browser to the renderer and starts its
// heartbeat. opts.URL, when set, is loaded right away.
func (s *System) CreateBrowser(opts BrowserOptions) (*Browser, error) {
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	select {
	case <-s.ch.Done():
		return nil, channel.ErrClosed
	default:
	}

	b := newBrowser(s, opts, time.Now())
	b.seq = s.seq.Add(1)
	s.mu.Lock()
	s.browsers[b.id] = b
	s.mu.Unlock()
	s.metrics.AddBrowsers(1)

	if err := s.ch.Send(protocol.Envelope{BrowserID: b.id, Message: protocol.BrowserCreated{}}); err != nil {
		s.mu.Lock()
		delete(s.browsers, b.id)
		s.mu.Unlock()
		s.metrics.AddBrowsers(-1)
		return nil, err
	}
	b.logger.Info("Browser created", zap.String("name", opts.Name))

	if opts.URL != "" {
		b.LoadURL(opts.URL)
	}
	return b, nil
}

// Run reads the channel and ticks Update until ctx is cancelled or the
// renderer goes away. Every browser is closed on return. A renderer closing
// the channel is a normal shutdown and returns nil.
func (s *System) Run(ctx context.Context) error {
	defer s.Shutdown()

	errc := make(chan error, 1)
	go func() { errc <- s.read(ctx) }()

	tick := s.config.TickInterval
	if tick <= 0 {
		tick = DefaultConfig().TickInterval
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.Update(now)
		case err := <-errc:
			s.Update(time.Now())
			if errors.Is(err, channel.ErrClosed) || errors.Is(err, io.EOF) {
				s.logger.Info("Renderer channel closed")
				return nil
			}
			return err
		}
	}
}

func (s *System) read(ctx context.Context) error {
	for {
		env, err := s.ch.Recv(ctx)
		if err != nil {
			return err
		}
		if s.config.QueuedDispatch {
			s.queue.Push(env)
			continue
		}
		s.Dispatch(env)
	}
}

// Update drains queued messages and advances browser heartbeats. Run calls
// it once per tick; applications with their own frame loop may call it
// directly instead.
func (s *System) Update(now time.Time) {
	for _, env := range s.queue.Drain() {
		s.Dispatch(env)
	}
	for _, b := range s.Browsers() {
		b.think(now)
	}
}

// Dispatch routes one renderer message to its browser.
func (s *System) Dispatch(env protocol.Envelope) {
	b, ok := s.Browser(env.BrowserID)
	if !ok {
		s.logger.Debug("Message for unknown browser dropped",
			zap.String("browser", env.BrowserID),
			zap.String("tag", string(env.Message.Tag())))
		return
	}
	b.dispatch(env.Message)
}

// Browser finds a browser by id.
func (s *System) Browser(id string) (*Browser, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.browsers[id]
	return b, ok
}

// FindBrowser finds the first browser created under name.
func (s *System) FindBrowser(name string) (*Browser, bool) {
	for _, b := range s.Browsers() {
		if b.name == name {
			return b, true
		}
	}
	return nil, false
}

// Browsers lists live browsers in creation order.
func (s *System) Browsers() []*Browser {
	s.mu.RLock()
	list := make([]*Browser, 0, len(s.browsers))
	for _, b := range s.browsers {
		list = append(list, b)
	}
	s.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	return list
}

// Count returns the number of live browsers.
func (s *System) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.browsers)
}

// Shutdown closes every browser.
func (s *System) Shutdown() {
	for _, b := range s.Browsers() {
		b.Close()
	}
}

func (s *System) remove(b *Browser) {
	s.mu.Lock()
	_, ok := s.browsers[b.id]
	delete(s.browsers, b.id)
	s.mu.Unlock()
	if ok {
		s.metrics.AddBrowsers(-1)
	}
}

func (s *System) send(browserID string, msg protocol.Message) bool {
	if err := s.ch.Send(protocol.Envelope{BrowserID: browserID, Message: msg}); err != nil {
		s.logger.Debug("Send to renderer failed",
			zap.String("browser", browserID),
			zap.String("tag", string(msg.Tag())),
			zap.Error(err))
		return false
	}
	return true
}
