package host

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/callbacks"
	"github.com/GriffinCanCode/webbridge/internal/logging"
	"github.com/GriffinCanCode/webbridge/internal/protocol"
	"github.com/GriffinCanCode/webbridge/internal/shared/id"
	"go.uber.org/zap"
)

// Browser is the host side of one renderer browser. Every bridge call is
// fire-and-forget: it returns false or nil when the browser does not accept
// calls, and never waits for the renderer.
type Browser struct {
	id       string
	seq      uint64
	name     string
	system   *System
	policy   NavigationPolicy
	handlers Handlers
	frames   *FrameGate
	beat     *Heartbeat
	logger   *logging.Logger

	state       atomic.Int32
	contextSeen atomic.Bool
	fatalOnce   sync.Once

	mu        sync.Mutex
	url       string
	functions map[string]*boundFunction
	pending   map[string]*Result
	// requested counts the contexts asked of the renderer (one at creation,
	// one per navigation); created counts context-created replies. Only the
	// context-created matching the latest request makes the browser Ready.
	requested int64
	created   int64
}

type boundFunction struct {
	obj     *JSObject
	handler MethodHandler
}

func newBrowser(s *System, opts BrowserOptions, now time.Time) *Browser {
	bid := id.NewBrowserID().String()
	return &Browser{
		id:        bid,
		name:      opts.Name,
		system:    s,
		policy:    opts.Policy,
		handlers:  opts.Handlers,
		frames:    NewFrameGate(opts.Sink),
		beat:      newHeartbeat(s.config.PingInterval, s.config.LaunchTimeout, now),
		logger:    s.logger.ForBrowser(bid),
		functions: make(map[string]*boundFunction),
		pending:   make(map[string]*Result),
		requested: 1,
	}
}

// ID returns the browser identifier shared with the renderer.
func (b *Browser) ID() string { return b.id }

// Name returns the name given at creation.
func (b *Browser) Name() string { return b.name }

// State returns the lifecycle state.
func (b *Browser) State() State { return State(b.state.Load()) }

// Ready reports whether bridge calls are accepted.
func (b *Browser) Ready() bool { return b.State() == StateReady }

// Heartbeat returns the liveness tracker.
func (b *Browser) Heartbeat() *Heartbeat { return b.beat }

// LastPong returns when the renderer last answered a ping.
func (b *Browser) LastPong() time.Time { return b.beat.LastPong() }

// Frames returns the gate paint output must pass through.
func (b *Browser) Frames() *FrameGate { return b.frames }

// URL returns the last url accepted by LoadURL.
func (b *Browser) URL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.url
}

// PendingResults returns how many result futures are unsettled.
func (b *Browser) PendingResults() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Global returns a proxy for the global object of the current context.
func (b *Browser) Global() *JSObject {
	return &JSObject{name: "window", browser: b}
}

func (b *Browser) closing() bool {
	s := b.State()
	return s == StateClosing || s == StateClosed
}

func (b *Browser) send(msg protocol.Message) bool {
	return b.system.send(b.id, msg)
}

// sendReady sends msg only while a script context is live.
func (b *Browser) sendReady(msg protocol.Message) bool {
	if !b.Ready() {
		b.logger.Debug("Bridge call on browser that is not ready",
			zap.String("tag", string(msg.Tag())),
			zap.Stringer("state", b.State()))
		return false
	}
	return b.send(msg)
}

// CreateGlobalObject creates an empty object on the global scope.
func (b *Browser) CreateGlobalObject(name string) *JSObject {
	obj := &JSObject{id: id.NewObjectID().String(), name: name, browser: b}
	if !b.sendReady(protocol.CreateGlobalObject{ID: obj.id, Name: name}) {
		return nil
	}
	return obj
}

// CreateFunction installs a function named name on parent (the global
// object when parent is nil). Script calls to it reach handler, or
// Handlers.OnMethodCall when handler is nil. With hasCallback the script
// must pass a trailing callback, answered through MethodCall.Reply.
func (b *Browser) CreateFunction(name string, parent *JSObject, hasCallback bool, handler MethodHandler) *JSObject {
	obj := &JSObject{id: id.NewObjectID().String(), name: name, browser: b}

	b.mu.Lock()
	b.functions[obj.id] = &boundFunction{obj: obj, handler: handler}
	b.mu.Unlock()

	msg := protocol.CreateFunction{ID: obj.id, Name: name, ParentID: targetID(parent), HasCallback: hasCallback}
	if !b.sendReady(msg) {
		b.mu.Lock()
		delete(b.functions, obj.id)
		b.mu.Unlock()
		return nil
	}
	return obj
}

// Invoke calls method on target (the global object when nil) and discards
// the result.
func (b *Browser) Invoke(target *JSObject, method string, args ...protocol.Value) bool {
	return b.sendReady(protocol.Invoke{TargetID: targetID(target), Method: method, Args: args})
}

// InvokeWithResult calls method on target and returns a proxy for the
// return value. The proxy's Result settles when the renderer reports back.
func (b *Browser) InvokeWithResult(target *JSObject, method string, args ...protocol.Value) *JSObject {
	return b.withResult(method, func(resultID string) protocol.Message {
		return protocol.InvokeWithResult{ResultID: resultID, TargetID: targetID(target), Method: method, Args: args}
	})
}

// ExecuteJavaScript runs code in the page. startLine offsets reported line numbers.
func (b *Browser) ExecuteJavaScript(code, scriptURL string, startLine int) bool {
	return b.sendReady(protocol.ExecuteJavaScript{Code: code, ScriptURL: scriptURL, StartLine: int64(startLine)})
}

// ExecuteJavaScriptWithResult runs code and returns a proxy for its
// completion value.
func (b *Browser) ExecuteJavaScriptWithResult(code string) *JSObject {
	return b.withResult("", func(resultID string) protocol.Message {
		return protocol.ExecuteJavaScriptWithResult{ResultID: resultID, Code: code}
	})
}

// SetAttr sets attr on obj (the global object when nil).
func (b *Browser) SetAttr(obj *JSObject, attr string, value protocol.Value) bool {
	return b.sendReady(protocol.ObjectSetAttr{ID: targetID(obj), Attr: attr, Value: value})
}

// GetAttr reads attr from obj (the global object when nil) into a new proxy.
func (b *Browser) GetAttr(obj *JSObject, attr string) *JSObject {
	return b.withResult(attr, func(resultID string) protocol.Message {
		return protocol.ObjectGetAttr{ID: targetID(obj), Attr: attr, ResultID: resultID}
	})
}

func (b *Browser) withResult(name string, build func(resultID string) protocol.Message) *JSObject {
	if !b.Ready() {
		b.logger.Debug("Result request on browser that is not ready", zap.String("name", name))
		return nil
	}

	res := newResult(id.NewObjectID().String())
	b.mu.Lock()
	b.pending[res.id] = res
	b.mu.Unlock()
	b.system.metrics.AddPendingResults(1)

	if !b.send(build(res.id)) {
		b.takePending(res.id)
		return nil
	}
	return &JSObject{id: res.id, name: name, browser: b, result: res}
}

func (b *Browser) takePending(resultID string) (*Result, bool) {
	b.mu.Lock()
	res, ok := b.pending[resultID]
	delete(b.pending, resultID)
	b.mu.Unlock()
	if ok {
		b.system.metrics.AddPendingResults(-1)
	}
	return res, ok
}

// failPending settles every pending result with err.
func (b *Browser) failPending(err error) {
	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[string]*Result)
	b.mu.Unlock()

	b.system.metrics.AddPendingResults(-len(pending))
	for _, res := range pending {
		res.settle(protocol.Null(), err)
	}
}

// SendCallbackReply answers a pending script callback.
func (b *Browser) SendCallbackReply(id callbacks.ID, args ...protocol.Value) bool {
	return b.sendReady(protocol.CallbackReply{CallbackID: id, Args: args})
}

// LoadURL navigates the browser. A url refused by the navigation policy is
// handed to Handlers.OnOpenURL instead and LoadURL returns false.
func (b *Browser) LoadURL(url string) bool {
	if b.closing() {
		return false
	}

	b.mu.Lock()
	current := b.url
	b.mu.Unlock()

	if !b.policy.Allows(current, url) {
		b.logger.Info("Navigation denied by policy",
			zap.String("url", url),
			zap.Stringer("mode", b.policy.Mode))
		if b.handlers.OnOpenURL != nil {
			b.handlers.OnOpenURL(b, url)
		}
		return false
	}

	b.navigating()
	if !b.send(protocol.LoadURL{URL: url}) {
		return false
	}
	b.mu.Lock()
	b.url = url
	b.mu.Unlock()
	return true
}

// Reload reloads the current page into a fresh context.
func (b *Browser) Reload() bool {
	if b.closing() {
		return false
	}
	b.navigating()
	return b.send(protocol.Reload{})
}

// navigating records that a new context was requested. The current context
// stops accepting calls right away; results and method calls it already has
// in flight still arrive ahead of its context-released.
func (b *Browser) navigating() {
	b.mu.Lock()
	b.requested++
	left := b.state.CompareAndSwap(int32(StateReady), int32(StateCreated))
	b.mu.Unlock()

	if left && b.handlers.OnContextReleased != nil {
		b.handlers.OnContextReleased(b)
	}
}

// SendMouseEvent injects a mouse event of the given type ("mousedown",
// "mouseup", "mousemove", "wheel") at x, y.
func (b *Browser) SendMouseEvent(typ string, x, y, button, modifiers int) bool {
	return b.sendReady(protocol.InputEvent{
		Type:      typ,
		X:         int64(x),
		Y:         int64(y),
		Code:      int64(button),
		Modifiers: int64(modifiers),
	})
}

// SendKeyEvent injects a key event of the given type ("keydown", "keyup", "char").
func (b *Browser) SendKeyEvent(typ string, code, modifiers int) bool {
	return b.sendReady(protocol.InputEvent{Type: typ, Code: int64(code), Modifiers: int64(modifiers)})
}

// Ping sends a heartbeat ping.
func (b *Browser) Ping() bool {
	if b.closing() {
		return false
	}
	b.beat.pinged(time.Now())
	return b.send(protocol.Ping{})
}

// Close tears the browser down: frames stop, pending results fail with
// ErrBrowserClosed and the renderer is told to destroy its side. Close is
// idempotent.
func (b *Browser) Close() {
	for {
		s := b.State()
		if s == StateClosing || s == StateClosed {
			return
		}
		if b.state.CompareAndSwap(int32(s), int32(StateClosing)) {
			break
		}
	}

	b.frames.Close()
	b.send(protocol.BrowserDestroyed{})
	b.failPending(ErrBrowserClosed)

	b.mu.Lock()
	clear(b.functions)
	b.mu.Unlock()

	b.state.Store(int32(StateClosed))
	b.system.remove(b)
	b.logger.Info("Browser closed")
}

// think runs the startup heartbeat. It is called from System.Update.
func (b *Browser) think(now time.Time) {
	if b.closing() {
		return
	}
	due, err := b.beat.check(now, b.contextSeen.Load())
	if err != nil {
		b.fatal(err)
		return
	}
	if due {
		b.Ping()
	}
}

func (b *Browser) fatal(err error) {
	b.fatalOnce.Do(func() {
		reason := "create_failed"
		if errors.Is(err, ErrRendererUnavailable) {
			reason = "renderer_unavailable"
		}
		b.logger.Error("Browser failed to start",
			zap.Error(err),
			zap.Duration("launch_timeout", b.system.config.LaunchTimeout))
		b.system.metrics.RecordFatal(reason)
		if b.handlers.OnFatal != nil {
			b.handlers.OnFatal(b, err)
		}
		b.Close()
	})
}

// dispatch handles one renderer message for this browser.
func (b *Browser) dispatch(msg protocol.Message) {
	if b.State() == StateClosed {
		return
	}

	switch m := msg.(type) {
	case protocol.ContextCreated:
		b.contextCreated()
	case protocol.ContextReleased:
		b.contextReleased()
	case protocol.MethodCall:
		b.methodCall(m)
	case protocol.InvokeResult:
		b.invokeResult(m)
	case protocol.Log:
		b.logger.Info("Renderer log", zap.String("text", m.Text))
		if b.handlers.OnLog != nil {
			b.handlers.OnLog(b, m.Text)
		}
	case protocol.Warning:
		b.logger.Warn("Renderer warning", zap.String("text", m.Text))
		if b.handlers.OnWarning != nil {
			b.handlers.OnWarning(b, m.Text)
		}
	case protocol.Pong:
		if rtt, ok := b.beat.ponged(time.Now()); ok {
			b.system.metrics.ObserveHeartbeat(rtt)
		}
	case protocol.Ping:
		b.send(protocol.Pong{})
	default:
		b.logger.Debug("Unexpected message from renderer", zap.String("tag", string(msg.Tag())))
	}
}

func (b *Browser) contextCreated() {
	first := !b.contextSeen.Swap(true)

	b.mu.Lock()
	b.created++
	stale := b.created < b.requested
	if !stale {
		b.requested = b.created
	}
	ready := !stale && b.state.CompareAndSwap(int32(StateCreated), int32(StateReady))
	b.mu.Unlock()

	if stale {
		b.logger.Debug("Context created for a superseded navigation")
		return
	}
	if !ready {
		b.logger.Debug("Context created while not awaiting one", zap.Stringer("state", b.State()))
		return
	}
	if first {
		b.logger.Info("Browser ready")
	}
	if b.handlers.OnContextCreated != nil {
		b.handlers.OnContextCreated(b)
	}
}

// contextReleased handles the renderer dropping a context. Every reply from
// that context came before this message, so whatever is still pending never
// gets one. No newer context can have bindings yet: the browser only becomes
// Ready on the latest context-created, which follows this message.
func (b *Browser) contextReleased() {
	b.failPending(ErrContextReleased)

	b.mu.Lock()
	clear(b.functions)
	released := b.created >= b.requested && b.state.CompareAndSwap(int32(StateReady), int32(StateCreated))
	b.mu.Unlock()

	if released && b.handlers.OnContextReleased != nil {
		b.handlers.OnContextReleased(b)
	}
}

func (b *Browser) methodCall(m protocol.MethodCall) {
	b.mu.Lock()
	fn := b.functions[m.TargetID]
	b.mu.Unlock()

	call := &MethodCall{
		Browser:    b,
		Method:     m.Method,
		Args:       m.Args,
		CallbackID: m.CallbackID,
	}
	handler := b.handlers.OnMethodCall
	if fn != nil {
		call.Function = fn.obj
		if fn.handler != nil {
			handler = fn.handler
		}
	}

	if handler == nil {
		b.system.metrics.RecordMethodCall(false)
		b.logger.Warn("Unhandled method call",
			zap.String("method", m.Method),
			zap.String("function", m.TargetID))
		return
	}
	b.system.metrics.RecordMethodCall(true)
	handler(call)
}

func (b *Browser) invokeResult(m protocol.InvokeResult) {
	res, ok := b.takePending(m.ResultID)
	if !ok {
		b.logger.Debug("Result for unknown request", zap.String("result", m.ResultID))
		return
	}
	if !m.OK {
		res.settle(protocol.Null(), fmt.Errorf("%w: %s", ErrScript, m.Error))
		return
	}
	res.settle(m.Value, nil)
}
