package host

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/webbridge/internal/protocol"
)

// Result is the future of an invoke-with-result style request. It settles
// exactly once: with the renderer's invoke-result reply, or with
// ErrContextReleased / ErrBrowserClosed when the browser tears down first.
type Result struct {
	id   string
	done chan struct{}

	mu    sync.Mutex
	value protocol.Value
	err   error
	thens []func(protocol.Value, error)
}

func newResult(id string) *Result {
	return &Result{id: id, done: make(chan struct{})}
}

// ID returns the identifier the result is registered under in the renderer.
func (r *Result) ID() string { return r.id }

// Done is closed once the result settles.
func (r *Result) Done() <-chan struct{} { return r.done }

// Value returns the settled value, or ErrPending.
func (r *Result) Value() (protocol.Value, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.value, r.err
	default:
		return protocol.Null(), ErrPending
	}
}

// Then registers fn to run when the result settles. fn runs immediately
// when the result is already settled, otherwise on the dispatching goroutine.
func (r *Result) Then(fn func(protocol.Value, error)) {
	r.mu.Lock()
	select {
	case <-r.done:
		v, err := r.value, r.err
		r.mu.Unlock()
		fn(v, err)
	default:
		r.thens = append(r.thens, fn)
		r.mu.Unlock()
	}
}

// Wait blocks until the result settles or ctx is done. It must not be
// called from the dispatching goroutine.
func (r *Result) Wait(ctx context.Context) (protocol.Value, error) {
	select {
	case <-r.done:
		return r.Value()
	case <-ctx.Done():
		return protocol.Null(), ctx.Err()
	}
}

// settle fulfils the result. Later calls are ignored and return false.
func (r *Result) settle(v protocol.Value, err error) bool {
	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		return false
	default:
	}
	r.value, r.err = v, err
	thens := r.thens
	r.thens = nil
	close(r.done)
	r.mu.Unlock()

	for _, fn := range thens {
		fn(v, err)
	}
	return true
}
