package host

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/config"
)

var (
	// ErrBrowserClosed fails results still pending when a browser closes.
	ErrBrowserClosed = errors.New("browser closed")
	// ErrContextReleased fails results still pending when the page context goes away.
	ErrContextReleased = errors.New("script context released")
	// ErrScript wraps an error reported by the renderer for a result.
	ErrScript = errors.New("script error")
	// ErrRendererUnavailable means the renderer never answered a heartbeat.
	ErrRendererUnavailable = errors.New("renderer process unavailable")
	// ErrCreateFailed means the renderer answered but never created a script context.
	ErrCreateFailed = errors.New("browser creation failed")
	// ErrPending is returned by Result.Value before the result settles.
	ErrPending = errors.New("result pending")
)

// Config defines host bridge behavior
type Config struct {
	QueuedDispatch bool          // Dispatch inbound messages from Update instead of the reader goroutine
	TickInterval   time.Duration // Period of the Run tick loop
	PingInterval   time.Duration // Startup ping pacing
	LaunchTimeout  time.Duration // Fatal after this long without a finished startup
}

// DefaultConfig returns the host defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:  16 * time.Millisecond,
		PingInterval:  time.Second,
		LaunchTimeout: 60 * time.Second,
	}
}

// ConfigFrom builds a host Config from application configuration.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	c.QueuedDispatch = cfg.Bridge.QueuedDispatch
	if cfg.Bridge.TickInterval > 0 {
		c.TickInterval = cfg.Bridge.TickInterval
	}
	if cfg.Bridge.PingInterval > 0 {
		c.PingInterval = cfg.Bridge.PingInterval
	}
	if cfg.Bridge.LaunchTimeout > 0 {
		c.LaunchTimeout = cfg.Bridge.LaunchTimeout
	}
	return c
}

// State is the lifecycle of a host Browser.
type State int32

const (
	// StateCreated: announced to the renderer, no script context yet.
	StateCreated State = iota
	// StateReady: a script context is live and bridge calls are accepted.
	StateReady
	StateClosing
	StateClosed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handlers receives browser events. Every field is optional. Handlers run
// on the goroutine that dispatches inbound messages, except that
// OnContextReleased runs on the caller of LoadURL or Reload when a
// navigation leaves a live context.
type Handlers struct {
	// OnContextCreated fires when a page context becomes live. Global
	// objects and functions must be (re)created here after every navigation.
	OnContextCreated func(b *Browser)
	// OnContextReleased fires when the browser stops accepting calls into
	// its current context.
	OnContextReleased func(b *Browser)
	// OnMethodCall receives calls into functions created without a handler.
	OnMethodCall func(call *MethodCall)
	OnLog        func(b *Browser, text string)
	OnWarning    func(b *Browser, text string)
	// OnOpenURL receives navigations refused by the policy.
	OnOpenURL func(b *Browser, url string)
	// OnFatal fires at most once when the renderer fails to bring the
	// browser up. The browser is closed afterwards.
	OnFatal func(b *Browser, err error)
}

// BrowserOptions configures CreateBrowser.
type BrowserOptions struct {
	Name     string
	URL      string
	Policy   NavigationPolicy
	Handlers Handlers
	Sink     FrameSink
}
