package renderer

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/callbacks"
	"github.com/GriffinCanCode/webbridge/internal/logging"
	"github.com/GriffinCanCode/webbridge/internal/monitoring"
	"github.com/GriffinCanCode/webbridge/internal/protocol"
	"github.com/GriffinCanCode/webbridge/internal/registry"
	"github.com/GriffinCanCode/webbridge/internal/resource"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const callbackTypeError = "Last argument must be a callback function!"

// maxStartLine bounds the line offset a host may request for executed code.
const maxStartLine = 1 << 20

var (
	errInactive       = errors.New("context is not active")
	errTargetNotFound = errors.New("target not found")
)

// Context is one live script environment of a browser: a goja runtime with
// its object registry and pending callbacks. A Context goes from
// Uninitialized to Active once and from Active to Destroyed once; a
// destroyed Context ignores every operation.
type Context struct {
	browserID string
	config    Config
	state     atomic.Int32

	vm        *goja.Runtime
	objects   *registry.Registry[goja.Value]
	globals   map[string]*goja.Object
	callbacks *callbacks.Table[goja.Value]
	listeners map[string][]goja.Value

	send    func(protocol.Message)
	console *rate.Limiter
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

func newContext(browserID string, config Config, send func(protocol.Message), logger *logging.Logger, metrics *monitoring.Metrics) *Context {
	c := &Context{
		browserID: browserID,
		config:    config,
		send:      send,
		logger:    logger,
		metrics:   metrics,
	}
	c.objects = registry.New[goja.Value](c.Active,
		registry.WithOverwriteHook[goja.Value](func(id string) {
			c.logger.Debug("Identifier re-registered, previous handle dropped", zap.String("id", id))
		}),
	)
	c.callbacks = callbacks.NewTable[goja.Value](c.invokeCallback, func(id callbacks.ID, err error) {
		c.warn("callback %d failed: %s", id, describe(err))
	})
	if config.ConsoleRate > 0 {
		c.console = rate.NewLimiter(rate.Limit(config.ConsoleRate), max(config.ConsoleBurst, 1))
	}
	return c
}

// State returns the lifecycle state.
func (c *Context) State() State {
	return State(c.state.Load())
}

// Active reports whether the context accepts operations.
func (c *Context) Active() bool {
	return c.State() == StateActive
}

// Init creates the script environment. It fails unless the context is new.
func (c *Context) Init() error {
	if !c.state.CompareAndSwap(int32(StateUninitialized), int32(StateActive)) {
		return fmt.Errorf("context is %s", c.State())
	}

	c.vm = goja.New()
	c.globals = make(map[string]*goja.Object)
	c.listeners = make(map[string][]goja.Value)
	c.setupGlobals()
	c.metrics.AddContexts(1)
	c.logger.Debug("Context created")
	return nil
}

// Destroy drops every registered object and pending callback and releases
// the runtime. Calling it more than once is harmless.
func (c *Context) Destroy() {
	prev := State(c.state.Swap(int32(StateDestroyed)))
	if prev == StateDestroyed {
		return
	}

	c.objects.Clear()
	dropped := c.callbacks.Purge()
	c.metrics.AddPendingCallbacks(-dropped)
	c.globals = nil
	c.listeners = nil
	c.vm = nil

	if prev == StateActive {
		c.metrics.AddContexts(-1)
	}
	c.logger.Debug("Context destroyed", zap.Int("dropped_callbacks", dropped))
}

// PendingCallbacks returns how many callbacks are waiting for a host reply.
func (c *Context) PendingCallbacks() int {
	return c.callbacks.Len()
}

// setupGlobals configures global objects
func (c *Context) setupGlobals() {
	global := c.vm.GlobalObject()
	global.Set("window", global)

	if c.config.EnableConsole {
		console := c.vm.NewObject()
		console.Set("log", c.makeConsoleFunc("log"))
		console.Set("info", c.makeConsoleFunc("info"))
		console.Set("debug", c.makeConsoleFunc("debug"))
		console.Set("warn", c.makeConsoleFunc("warn"))
		console.Set("error", c.makeConsoleFunc("error"))
		global.Set("console", console)
	}

	input := c.vm.NewObject()
	input.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
		typ := call.Argument(0).String()
		fn := call.Argument(1)
		if _, ok := goja.AssertFunction(fn); !ok {
			panic(c.vm.NewTypeError("listener must be a function"))
		}
		c.listeners[typ] = append(c.listeners[typ], fn)
		return goja.Undefined()
	})
	input.Set("removeEventListener", func(call goja.FunctionCall) goja.Value {
		typ := call.Argument(0).String()
		fn := call.Argument(1)
		kept := c.listeners[typ][:0]
		for _, l := range c.listeners[typ] {
			if !l.StrictEquals(fn) {
				kept = append(kept, l)
			}
		}
		c.listeners[typ] = kept
		return goja.Undefined()
	})
	global.Set("input", input)
}

// makeConsoleFunc creates a console function forwarding to the host
func (c *Context) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")

		c.logger.Debug("console."+level, zap.String("message", msg))
		if c.console != nil && !c.console.Allow() {
			return goja.Undefined()
		}
		switch level {
		case "warn", "error":
			c.send(protocol.Warning{Text: msg})
		default:
			c.send(protocol.Log{Text: msg})
		}
		return goja.Undefined()
	}
}

// warn logs and forwards a diagnostic to the host.
func (c *Context) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Warn(msg)
	c.send(protocol.Warning{Text: msg})
}

// guard runs one script entry under the configured timeout.
func (c *Context) guard(fn func() (goja.Value, error)) (goja.Value, error) {
	if c.config.ScriptTimeout > 0 {
		vm := c.vm
		fired := make(chan struct{})
		timer := time.AfterFunc(c.config.ScriptTimeout, func() {
			vm.Interrupt("execution timeout exceeded")
			close(fired)
		})
		defer func() {
			// A timer that already started must finish interrupting before the
			// flag is cleared, or it leaks into the next script entry.
			if !timer.Stop() {
				<-fired
			}
			vm.ClearInterrupt()
		}()
	}
	return fn()
}

func (c *Context) call(fn goja.Callable, this goja.Value, args ...goja.Value) (goja.Value, error) {
	return c.guard(func() (goja.Value, error) { return fn(this, args...) })
}

// resolve finds an object by identifier; the empty identifier is the global object.
func (c *Context) resolve(id string) (*goja.Object, bool) {
	if id == "" {
		return c.vm.GlobalObject(), true
	}
	v, ok := c.objects.Find(id)
	if !ok {
		return nil, false
	}
	obj, ok := v.(*goja.Object)
	return obj, ok
}

// marshalArgs converts script arguments for the wire. Arguments without a
// wire form become null and produce one warning each.
func (c *Context) marshalArgs(method string, args []goja.Value) []protocol.Value {
	if len(args) == 0 {
		return nil
	}
	out := make([]protocol.Value, len(args))
	for i, a := range args {
		v, ok := toWire(a)
		if !ok {
			c.metrics.IncMarshalWarnings()
			c.warn("%s: argument %d has no wire form, sent as null", method, i)
		}
		out[i] = v
	}
	return out
}

// CreateGlobalObject attaches a new object to the global scope under name
// and registers it under id.
func (c *Context) CreateGlobalObject(id, name string) bool {
	if !c.Active() {
		c.warn("create-global-object %q: context is %s", name, c.State())
		return false
	}

	obj := c.vm.NewObject()
	if err := c.vm.GlobalObject().Set(name, obj); err != nil {
		c.warn("create-global-object %q: %v", name, err)
		return false
	}
	c.globals[name] = obj
	return c.objects.Register(id, obj)
}

// Global returns a global object created by CreateGlobalObject.
func (c *Context) Global(name string) (*goja.Object, bool) {
	obj, ok := c.globals[name]
	return obj, ok
}

// CreateFunction binds a native function under name on the parent object
// (global when parentID is empty) and registers the function under id.
// Calls to it are forwarded to the host as method calls.
func (c *Context) CreateFunction(id, name, parentID string, hasCallback bool) bool {
	if !c.Active() {
		c.logger.Debug("create-function on inactive context", zap.String("name", name))
		return false
	}

	parent, ok := c.resolve(parentID)
	if !ok {
		c.warn("create-function %q: parent %q not found", name, parentID)
		return false
	}

	fn := c.vm.ToValue(c.boundFunction(id, name, hasCallback))
	if err := parent.Set(name, fn); err != nil {
		c.warn("create-function %q: %v", name, err)
		return false
	}
	return c.objects.Register(id, fn)
}

func (c *Context) boundFunction(id, name string, hasCallback bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if !c.Active() {
			return goja.Undefined()
		}

		args := call.Arguments
		callbackID := protocol.NoCallback
		if hasCallback {
			if len(args) == 0 {
				panic(c.vm.NewTypeError(callbackTypeError))
			}
			last := args[len(args)-1]
			if _, ok := goja.AssertFunction(last); !ok {
				panic(c.vm.NewTypeError(callbackTypeError))
			}
			callbackID = c.callbacks.Allocate(last, call.This)
			c.metrics.AddPendingCallbacks(1)
			args = args[:len(args)-1]
		}

		c.send(protocol.MethodCall{
			TargetID:   id,
			Method:     name,
			Args:       c.marshalArgs(name, args),
			CallbackID: callbackID,
		})
		return goja.Undefined()
	}
}

// Invoke calls method on the target object and discards the result.
func (c *Context) Invoke(targetID, method string, args []protocol.Value) bool {
	_, err := c.invoke(targetID, method, args)
	if err != nil {
		c.report("invoke", method, err)
		return false
	}
	return true
}

// InvokeWithResult calls method on the target and registers the return value
// under resultID. The outcome is reported to the host as an invoke-result.
func (c *Context) InvokeWithResult(resultID, targetID, method string, args []protocol.Value) bool {
	res, err := c.invoke(targetID, method, args)
	if err != nil {
		c.report("invoke-with-result", method, err)
		c.fail(resultID, err)
		return false
	}
	return c.settle(resultID, res)
}

func (c *Context) invoke(targetID, method string, args []protocol.Value) (goja.Value, error) {
	if !c.Active() {
		return nil, errInactive
	}
	target, ok := c.resolve(targetID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errTargetNotFound, targetID)
	}
	fn, ok := goja.AssertFunction(target.Get(method))
	if !ok {
		return nil, fmt.Errorf("%q is not a function", method)
	}

	res, err := c.call(fn, target, fromWireAll(c.vm, args)...)
	if err != nil {
		c.metrics.IncScriptErrors()
		return nil, errors.New(describe(err))
	}
	return res, nil
}

// report logs a failed operation. Resolution misses are routine during
// teardown and stay local; everything else is forwarded as a warning.
func (c *Context) report(op, name string, err error) {
	if errors.Is(err, errInactive) || errors.Is(err, errTargetNotFound) {
		c.logger.Debug(op+" skipped", zap.String("name", name), zap.Error(err))
		return
	}
	c.warn("%s %q: %v", op, name, err)
}

// fail settles the host future for resultID with an error.
func (c *Context) fail(resultID string, err error) {
	if errors.Is(err, errInactive) {
		return
	}
	c.send(protocol.InvokeResult{ResultID: resultID, Error: err.Error()})
}

// settle registers a result value and reports it to the host.
func (c *Context) settle(resultID string, res goja.Value) bool {
	if res == nil {
		res = goja.Undefined()
	}
	c.objects.Register(resultID, res)

	value, ok := toWire(res)
	if !ok {
		// Objects stay addressable by id even though they have no wire form.
		c.logger.Debug("Result has no wire form", zap.String("result", resultID))
	}
	c.send(protocol.InvokeResult{ResultID: resultID, OK: true, Value: value})
	return true
}

// CallbackReply runs and removes the pending callback with the given id.
// A miss is expected after the context was recreated and only warns.
func (c *Context) CallbackReply(id callbacks.ID, args []protocol.Value) bool {
	if !c.Active() || !c.callbacks.InvokeAndRemove(id, args) {
		c.metrics.IncDroppedReplies()
		c.warn("callback %d not found", id)
		return false
	}
	c.metrics.AddPendingCallbacks(-1)
	return true
}

func (c *Context) invokeCallback(fn, this goja.Value, args []protocol.Value) error {
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return errNotCallable
	}
	_, err := c.call(callable, this, fromWireAll(c.vm, args)...)
	if err != nil {
		c.metrics.IncScriptErrors()
	}
	return err
}

// Execute runs code as a script named scriptURL. startLine offsets reported
// line numbers.
func (c *Context) Execute(code, scriptURL string, startLine int64) bool {
	if _, err := c.execute(code, scriptURL, startLine); err != nil {
		c.report("script", scriptURL, err)
		return false
	}
	return true
}

// ExecuteWithResult runs code and registers its completion value under resultID.
func (c *Context) ExecuteWithResult(resultID, code string) bool {
	res, err := c.execute(code, "", 1)
	if err != nil {
		c.report("execute-with-result", resultID, err)
		c.fail(resultID, err)
		return false
	}
	return c.settle(resultID, res)
}

func (c *Context) execute(code, scriptURL string, startLine int64) (goja.Value, error) {
	if !c.Active() {
		return nil, errInactive
	}
	if startLine > maxStartLine {
		c.warn("execute %q: start line %d out of range, using 1", scriptURL, startLine)
		startLine = 1
	}
	if startLine > 1 {
		code = strings.Repeat("\n", int(startLine-1)) + code
	}
	res, err := c.guard(func() (goja.Value, error) { return c.vm.RunScript(scriptURL, code) })
	if err != nil {
		c.metrics.IncScriptErrors()
		return nil, errors.New(describe(err))
	}
	return res, nil
}

// SetAttr sets a property on a registered object (global when id is empty).
func (c *Context) SetAttr(id, attr string, value protocol.Value) bool {
	if !c.Active() {
		return false
	}
	obj, ok := c.resolve(id)
	if !ok {
		c.logger.Debug("object-set-attr target not found", zap.String("id", id))
		return false
	}
	if err := obj.Set(attr, fromWire(c.vm, value)); err != nil {
		c.warn("object-set-attr %q: %v", attr, err)
		return false
	}
	return true
}

// GetAttr reads a property and registers it under resultID.
func (c *Context) GetAttr(id, attr, resultID string) bool {
	if !c.Active() {
		return false
	}
	obj, ok := c.resolve(id)
	if !ok {
		err := fmt.Errorf("%w: %q", errTargetNotFound, id)
		c.report("object-get-attr", attr, err)
		c.fail(resultID, err)
		return false
	}
	return c.settle(resultID, obj.Get(attr))
}

// DispatchInput delivers an input event to listeners registered through
// input.addEventListener.
func (c *Context) DispatchInput(ev protocol.InputEvent) bool {
	if !c.Active() {
		return false
	}
	listeners := c.listeners[ev.Type]
	if len(listeners) == 0 {
		return false
	}

	event := c.vm.NewObject()
	event.Set("type", ev.Type)
	event.Set("x", ev.X)
	event.Set("y", ev.Y)
	event.Set("code", ev.Code)
	event.Set("modifiers", ev.Modifiers)

	for _, l := range append([]goja.Value(nil), listeners...) {
		fn, _ := goja.AssertFunction(l)
		if _, err := c.call(fn, goja.Undefined(), event); err != nil {
			c.metrics.IncScriptErrors()
			c.warn("input listener %s: %s", ev.Type, describe(err))
		}
	}
	return true
}

// RunPage executes a loaded page's scripts in order. A failing script is
// reported and the rest still run.
func (c *Context) RunPage(page *resource.Page) bool {
	if !c.Active() {
		return false
	}
	ok := true
	for _, s := range page.Scripts {
		if !c.Execute(s.Code, s.URL, 1) {
			ok = false
		}
	}
	return ok
}
