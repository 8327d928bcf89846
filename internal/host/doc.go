/*
Package host implements the host side of the bridge.

A System owns the channel to one renderer process. CreateBrowser announces a
browser to the renderer; the renderer answers with context-created once a
script context is live, which moves the Browser to Ready and fires
Handlers.OnContextCreated. Every navigation or reload releases the context
and creates a new one, so objects and functions are bound again from that
handler. LoadURL and Reload stop calls at once; the browser is Ready again
only when the context-created for the latest navigation arrives, and
context-created replies for superseded navigations are ignored.

# Calls

All bridge calls are fire-and-forget. Calls that need an answer
(InvokeWithResult, ExecuteJavaScriptWithResult, GetAttr) return a JSObject
whose Result settles when the renderer replies, or fails with
ErrContextReleased or ErrBrowserClosed when the browser tears down first.
Script calls into host functions arrive as MethodCall values; a call made
with a trailing callback is answered with MethodCall.Reply.

# Threading

Inbound messages are dispatched on the channel reader goroutine, or from
System.Update when Config.QueuedDispatch is set. Handlers run on that
goroutine and must not block on a Result.

# Startup

Until the renderer has answered a ping and created a context, Update pings
every PingInterval. After LaunchTimeout the browser fails through
Handlers.OnFatal with ErrRendererUnavailable (no pong ever arrived) or
ErrCreateFailed (the renderer answered but never created a context).
*/
package host
