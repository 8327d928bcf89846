package host

import (
	"github.com/GriffinCanCode/webbridge/internal/callbacks"
	"github.com/GriffinCanCode/webbridge/internal/protocol"
)

// JSObject is a host-side proxy for a value living in the renderer. It only
// carries the identifier; the value itself never crosses the channel unless
// it has a wire form.
type JSObject struct {
	id      string
	name    string
	browser *Browser
	result  *Result
}

// ID returns the identifier; the empty identifier is the global object.
func (o *JSObject) ID() string { return o.id }

// Name returns the name the object was created under, if any.
func (o *JSObject) Name() string { return o.name }

// Browser returns the owning browser.
func (o *JSObject) Browser() *Browser { return o.browser }

// Result returns the future for objects produced by a *WithResult call, or nil.
func (o *JSObject) Result() *Result { return o.result }

// targetID maps a nil proxy to the global object.
func targetID(o *JSObject) string {
	if o == nil {
		return ""
	}
	return o.id
}

// MethodHandler handles script calls into a host-installed function.
type MethodHandler func(call *MethodCall)

// MethodCall is one script call into a function created by CreateFunction.
type MethodCall struct {
	Browser *Browser
	// Function is the proxy returned by CreateFunction, nil when the
	// function is unknown to this host.
	Function   *JSObject
	Method     string
	Args       []protocol.Value
	CallbackID callbacks.ID
}

// HasCallback reports whether the script passed a callback for a reply.
func (c *MethodCall) HasCallback() bool {
	return c.CallbackID != protocol.NoCallback
}

// Reply answers the script callback. It returns false when the call carried
// no callback or the browser no longer accepts calls.
func (c *MethodCall) Reply(args ...protocol.Value) bool {
	if !c.HasCallback() {
		return false
	}
	return c.Browser.SendCallbackReply(c.CallbackID, args...)
}
