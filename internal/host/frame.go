package host

import (
	"image"
	"sync"
)

// FrameSink receives painted frames for a browser. buf holds width*height
// BGRA pixels and dirty lists the regions changed since the last frame.
type FrameSink interface {
	OnFrame(buf []byte, width, height int, dirty []image.Rectangle)
}

// FrameSinkFunc adapts a function to FrameSink.
type FrameSinkFunc func(buf []byte, width, height int, dirty []image.Rectangle)

func (f FrameSinkFunc) OnFrame(buf []byte, width, height int, dirty []image.Rectangle) {
	f(buf, width, height, dirty)
}

// FrameGate forwards frames to a sink until it is closed. Close waits for
// an in-flight delivery to return, so no frame reaches the sink once Close
// has returned.
type FrameGate struct {
	mu     sync.RWMutex
	sink   FrameSink
	closed bool
}

// NewFrameGate creates a gate in front of sink. A nil sink drops frames.
func NewFrameGate(sink FrameSink) *FrameGate {
	return &FrameGate{sink: sink}
}

// Deliver hands a frame to the sink. It returns false when the gate is
// closed or has no sink.
func (g *FrameGate) Deliver(buf []byte, width, height int, dirty []image.Rectangle) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed || g.sink == nil {
		return false
	}
	g.sink.OnFrame(buf, width, height, dirty)
	return true
}

// Close latches the gate shut. It is idempotent.
func (g *FrameGate) Close() {
	g.mu.Lock()
	g.closed = true
	g.sink = nil
	g.mu.Unlock()
}

// Closed reports whether Close was called.
func (g *FrameGate) Closed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closed
}
