package renderer

import (
	"time"

	"github.com/GriffinCanCode/webbridge/internal/config"
)

// Config defines renderer behavior
type Config struct {
	QueuedDispatch bool          // Drain inbound messages once per tick instead of inline
	TickInterval   time.Duration // Tick period for queued dispatch
	ScriptTimeout  time.Duration // Interrupt any single script entry after this long; 0 disables
	EnableConsole  bool          // Install console.* forwarding to the host
	ConsoleRate    float64       // console lines forwarded per second
	ConsoleBurst   int
}

// DefaultConfig returns the renderer defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:  16 * time.Millisecond,
		ScriptTimeout: 5 * time.Second,
		EnableConsole: true,
		ConsoleRate:   50,
		ConsoleBurst:  100,
	}
}

// ConfigFrom builds a renderer Config from application configuration.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	c.QueuedDispatch = cfg.Bridge.QueuedDispatch
	if cfg.Bridge.TickInterval > 0 {
		c.TickInterval = cfg.Bridge.TickInterval
	}
	c.ScriptTimeout = cfg.Renderer.ScriptTimeout
	c.ConsoleRate = cfg.Renderer.ConsoleRate
	c.ConsoleBurst = cfg.Renderer.ConsoleBurst
	return c
}

// State is the lifecycle of a Context.
type State int32

const (
	StateUninitialized State = iota
	StateActive
	StateDestroyed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}
