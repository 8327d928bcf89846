package host

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Heartbeat tracks the ping/pong round trip with a browser's renderer.
// During startup it paces pings and decides when the renderer has taken too
// long to bring the browser up. After startup it only records timestamps;
// the host application applies its own liveness window to LastPong.
type Heartbeat struct {
	created time.Time
	timeout time.Duration
	pacer   *rate.Sometimes

	lastPing atomic.Int64
	lastPong atomic.Int64
	started  atomic.Bool
}

func newHeartbeat(interval, timeout time.Duration, now time.Time) *Heartbeat {
	return &Heartbeat{
		created: now,
		timeout: timeout,
		pacer:   &rate.Sometimes{Interval: interval},
	}
}

// LastPing returns when the last ping was sent, or the zero time.
func (h *Heartbeat) LastPing() time.Time { return unixTime(h.lastPing.Load()) }

// LastPong returns when the last pong arrived, or the zero time.
func (h *Heartbeat) LastPong() time.Time { return unixTime(h.lastPong.Load()) }

// Started reports whether startup completed: a pong arrived and a script
// context was created.
func (h *Heartbeat) Started() bool { return h.started.Load() }

func (h *Heartbeat) pinged(now time.Time) {
	h.lastPing.Store(now.UnixNano())
}

// ponged records a pong and returns the round trip since the last ping.
func (h *Heartbeat) ponged(now time.Time) (time.Duration, bool) {
	h.lastPong.Store(now.UnixNano())
	sent := h.lastPing.Load()
	if sent == 0 {
		return 0, false
	}
	return now.Sub(time.Unix(0, sent)), true
}

// check advances startup. due reports that a ping should be sent now. A
// non-nil error means startup failed; it is returned once per call after the
// launch timeout and the caller is expected to stop calling.
func (h *Heartbeat) check(now time.Time, contextSeen bool) (due bool, err error) {
	if h.started.Load() {
		return false, nil
	}

	answered := h.lastPong.Load() != 0
	if answered && contextSeen {
		h.started.Store(true)
		return false, nil
	}

	if h.timeout > 0 && now.Sub(h.created) > h.timeout {
		if !answered {
			return false, ErrRendererUnavailable
		}
		return false, ErrCreateFailed
	}

	h.pacer.Do(func() { due = true })
	return due, nil
}

func unixTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
