package renderer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/channel"
	"github.com/GriffinCanCode/webbridge/internal/logging"
	"github.com/GriffinCanCode/webbridge/internal/protocol"
	"github.com/GriffinCanCode/webbridge/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBrowser = "brw_test"

type harness struct {
	t    *testing.T
	host *channel.Pipe
	app  *App
	done chan error
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ScriptTimeout = time.Second
	return cfg
}

func newHarness(t *testing.T, cfg Config, loader *resource.Loader) *harness {
	t.Helper()
	host, peer := channel.NewPipe()
	h := &harness{
		t:    t,
		host: host,
		app:  NewApp(peer, cfg, loader, logging.NewNop(), nil),
		done: make(chan error, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.done <- h.app.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		host.Close()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Error("renderer did not stop")
		}
	})

	h.send(protocol.BrowserCreated{})
	h.expect(protocol.ContextCreated{})
	return h
}

func (h *harness) send(msg protocol.Message) {
	h.t.Helper()
	require.NoError(h.t, h.host.Send(protocol.Envelope{BrowserID: testBrowser, Message: msg}))
}

func (h *harness) next() protocol.Message {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env, err := h.host.Recv(ctx)
	require.NoError(h.t, err)
	return env.Message
}

func (h *harness) expect(want protocol.Message) {
	h.t.Helper()
	assert.Equal(h.t, want, h.next())
}

func (h *harness) expectWarning(substr string) {
	h.t.Helper()
	msg := h.next()
	w, ok := msg.(protocol.Warning)
	require.True(h.t, ok, "expected warning, got %#v", msg)
	assert.Contains(h.t, w.Text, substr)
}

// sync proves every earlier message was handled and produced no output.
func (h *harness) sync() {
	h.t.Helper()
	h.send(protocol.Ping{})
	h.expect(protocol.Pong{})
}

func (h *harness) result(code string) protocol.InvokeResult {
	h.t.Helper()
	h.send(protocol.ExecuteJavaScriptWithResult{ResultID: "r-" + code, Code: code})
	msg := h.next()
	res, ok := msg.(protocol.InvokeResult)
	require.True(h.t, ok, "expected invoke-result, got %#v", msg)
	return res
}

func TestInvokeRegisteredFunction(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	h.send(protocol.CreateGlobalObject{ID: "A", Name: "api"})
	h.send(protocol.CreateFunction{ID: "B", Name: "log", ParentID: "A"})
	h.send(protocol.Invoke{TargetID: "A", Method: "log", Args: []protocol.Value{protocol.String("hello")}})

	h.expect(protocol.MethodCall{
		TargetID:   "B",
		Method:     "log",
		Args:       []protocol.Value{protocol.String("hello")},
		CallbackID: protocol.NoCallback,
	})
	h.sync()
}

func TestCreateFunctionUnknownParentAborts(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	h.send(protocol.CreateFunction{ID: "B", Name: "orphan", ParentID: "missing"})
	h.expectWarning(`parent "missing" not found`)

	res := h.result("typeof orphan")
	assert.Equal(t, protocol.String("undefined"), res.Value)
}

func TestCallbackRoundTrip(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	h.send(protocol.CreateFunction{ID: "F", Name: "fetch", HasCallback: true})
	h.send(protocol.CreateFunction{ID: "D", Name: "done"})
	h.send(protocol.ExecuteJavaScript{
		Code:      `fetch("url", 2, function(r) { done(r, this === globalThis); })`,
		ScriptURL: "local:test.js",
	})

	msg := h.next()
	call, ok := msg.(protocol.MethodCall)
	require.True(t, ok, "expected method-call, got %#v", msg)
	assert.Equal(t, "F", call.TargetID)
	assert.Equal(t, "fetch", call.Method)
	assert.Equal(t, []protocol.Value{protocol.String("url"), protocol.Int(2)}, call.Args)
	require.True(t, call.HasCallback())

	h.send(protocol.CallbackReply{CallbackID: call.CallbackID, Args: []protocol.Value{protocol.String("done")}})
	h.expect(protocol.MethodCall{
		TargetID:   "D",
		Method:     "done",
		Args:       []protocol.Value{protocol.String("done"), protocol.Bool(true)},
		CallbackID: protocol.NoCallback,
	})

	// A second reply with the same id finds nothing.
	h.send(protocol.CallbackReply{CallbackID: call.CallbackID})
	h.expectWarning("not found")

	// Ids keep increasing.
	h.send(protocol.ExecuteJavaScript{Code: `fetch(function() {})`})
	next := h.next().(protocol.MethodCall)
	assert.Greater(t, next.CallbackID, call.CallbackID)
	assert.Nil(t, next.Args)
}

func TestCallbackMissingFunctionThrowsTypeError(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.send(protocol.CreateFunction{ID: "F", Name: "fetch", HasCallback: true})

	res := h.result(`(function() {
		try { fetch("x"); return "no error" } catch (e) { return (e instanceof TypeError) + ": " + e.message }
	})()`)
	assert.True(t, res.OK)
	assert.Equal(t, protocol.String("true: Last argument must be a callback function!"), res.Value)

	res = h.result(`(function() { try { fetch(); return "no error" } catch (e) { return e.name } })()`)
	assert.Equal(t, protocol.String("TypeError"), res.Value)
}

func TestUnknownCallbackReplyWarns(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	h.send(protocol.CallbackReply{CallbackID: 999, Args: []protocol.Value{protocol.String("late")}})
	h.expectWarning("callback 999 not found")
	h.sync()
}

func TestReloadPurgesPendingCallbacks(t *testing.T) {
	loader, err := resource.NewLoader(t.TempDir(), nil)
	require.NoError(t, err)
	h := newHarness(t, testConfig(), loader)

	h.send(protocol.CreateFunction{ID: "F", Name: "fetch", HasCallback: true})
	h.send(protocol.CreateFunction{ID: "D", Name: "done"})
	h.send(protocol.ExecuteJavaScript{Code: `fetch(function() { done("fired"); })`})
	call := h.next().(protocol.MethodCall)

	h.send(protocol.Reload{})
	h.expect(protocol.ContextReleased{})
	h.expect(protocol.ContextCreated{})

	b, ok := h.app.Browser(testBrowser)
	require.True(t, ok)

	h.send(protocol.CallbackReply{CallbackID: call.CallbackID})
	h.expectWarning("not found")
	assert.Equal(t, 0, b.Context().PendingCallbacks())

	// Registrations from the old context are gone too.
	h.send(protocol.Invoke{TargetID: "F", Method: "call"})
	res := h.result("typeof fetch")
	assert.Equal(t, protocol.String("undefined"), res.Value)
}

func TestInvokeWithResult(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	h.send(protocol.ExecuteJavaScript{Code: `function add(a, b) { return a + b }; var box = { make: function() { return { v: 7 } } };`})
	h.send(protocol.InvokeWithResult{ResultID: "R1", Method: "add", Args: []protocol.Value{protocol.Int(1), protocol.Float(1.5)}})
	h.expect(protocol.InvokeResult{ResultID: "R1", OK: true, Value: protocol.Float(2.5)})

	// Object results have no wire form but stay addressable by id.
	h.send(protocol.ObjectGetAttr{ID: "", Attr: "box", ResultID: "BOX"})
	h.expect(protocol.InvokeResult{ResultID: "BOX", OK: true, Value: protocol.Null()})
	h.send(protocol.InvokeWithResult{ResultID: "OBJ", TargetID: "BOX", Method: "make"})
	h.expect(protocol.InvokeResult{ResultID: "OBJ", OK: true, Value: protocol.Null()})
	h.send(protocol.ObjectGetAttr{ID: "OBJ", Attr: "v", ResultID: "V"})
	h.expect(protocol.InvokeResult{ResultID: "V", OK: true, Value: protocol.Int(7)})

	h.send(protocol.InvokeWithResult{ResultID: "R2", TargetID: "missing", Method: "add"})
	msg := h.next().(protocol.InvokeResult)
	assert.False(t, msg.OK)
	assert.Contains(t, msg.Error, "target not found")
}

func TestScriptExceptionBecomesWarning(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	h.send(protocol.ExecuteJavaScript{Code: `function boom() { throw new Error("kaboom") }`})
	h.send(protocol.Invoke{Method: "boom"})
	h.expectWarning("kaboom")

	h.send(protocol.Invoke{Method: "nothing"})
	h.expectWarning(`"nothing" is not a function`)

	// A missing target is a routine miss and stays local.
	h.send(protocol.Invoke{TargetID: "gone", Method: "boom"})
	h.sync()
}

func TestUnsupportedArgumentBecomesNull(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.send(protocol.CreateFunction{ID: "S", Name: "send"})

	h.send(protocol.ExecuteJavaScript{Code: `send(1, {a: 1}, [1.5, "x", null, [true]], undefined)`})
	h.expectWarning("argument 1 has no wire form")
	h.expect(protocol.MethodCall{
		TargetID: "S",
		Method:   "send",
		Args: []protocol.Value{
			protocol.Int(1),
			protocol.Null(),
			protocol.List(protocol.Float(1.5), protocol.String("x"), protocol.Null(), protocol.List(protocol.Bool(true))),
			protocol.Null(),
		},
		CallbackID: protocol.NoCallback,
	})
}

func TestUnboundedArgumentsBecomeNull(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.send(protocol.CreateFunction{ID: "S", Name: "send"})

	h.send(protocol.ExecuteJavaScript{Code: `var a = []; a.push(a); send(a)`})
	h.expectWarning("argument 0 has no wire form")
	h.expect(protocol.MethodCall{
		TargetID:   "S",
		Method:     "send",
		Args:       []protocol.Value{protocol.List(protocol.Null())},
		CallbackID: protocol.NoCallback,
	})

	h.send(protocol.ExecuteJavaScript{Code: `var big = []; big.length = 4e9; send(1, big)`})
	h.expectWarning("argument 1 has no wire form")
	h.expect(protocol.MethodCall{
		TargetID:   "S",
		Method:     "send",
		Args:       []protocol.Value{protocol.Int(1), protocol.Null()},
		CallbackID: protocol.NoCallback,
	})
}

func TestWireValuesReachScript(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	h.send(protocol.ObjectSetAttr{Attr: "data", Value: protocol.List(protocol.Int(1), protocol.String("two"), protocol.List(protocol.Null()))})
	res := h.result(`Array.isArray(data) && data[1] === "two" && data[2][0] === null`)
	assert.Equal(t, protocol.Bool(true), res.Value)

	res = h.result(`[1, 'a', null, [true]]`)
	assert.Equal(t, protocol.List(protocol.Int(1), protocol.String("a"), protocol.Null(), protocol.List(protocol.Bool(true))), res.Value)
}

func TestConsoleForwarding(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	h.send(protocol.ExecuteJavaScript{Code: `console.log("hello", 42); console.error("bad")`})
	h.expect(protocol.Log{Text: "hello 42"})
	h.expect(protocol.Warning{Text: "bad"})
}

func TestInputEvents(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.send(protocol.CreateFunction{ID: "C", Name: "clicked"})
	h.send(protocol.ExecuteJavaScript{Code: `input.addEventListener("mousedown", function(e) { clicked(e.x, e.y, e.code) })`})

	h.send(protocol.InputEvent{Type: "mousedown", X: 10, Y: 20, Code: 1})
	h.expect(protocol.MethodCall{
		TargetID:   "C",
		Method:     "clicked",
		Args:       []protocol.Value{protocol.Int(10), protocol.Int(20), protocol.Int(1)},
		CallbackID: protocol.NoCallback,
	})

	h.send(protocol.InputEvent{Type: "keydown", Code: 65})
	h.sync()
}

func TestLoadURLRunsPageScripts(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"),
		[]byte(`<html><body><script>console.log("page " + (1 + 1))</script></body></html>`), 0o644))
	loader, err := resource.NewLoader(root, nil)
	require.NoError(t, err)
	h := newHarness(t, testConfig(), loader)

	h.send(protocol.LoadURL{URL: "local:"})
	h.expect(protocol.ContextReleased{})
	h.expect(protocol.ContextCreated{})
	h.expectWarning("not found")

	h.send(protocol.LoadURL{URL: "local:index.html"})
	h.expect(protocol.ContextReleased{})
	h.expect(protocol.ContextCreated{})
	h.expect(protocol.Log{Text: "page 2"})

	b, _ := h.app.Browser(testBrowser)
	assert.Equal(t, "local:index.html", b.URL())
}

func TestScriptTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ScriptTimeout = 50 * time.Millisecond
	h := newHarness(t, cfg, nil)

	h.send(protocol.ExecuteJavaScript{Code: `while (true) {}`})
	h.expectWarning("interrupted")

	res := h.result("1 + 1")
	assert.Equal(t, protocol.Int(2), res.Value)
}

func TestMessagesForUnknownBrowserAreDropped(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	require.NoError(t, h.host.Send(protocol.Envelope{BrowserID: "other", Message: protocol.Invoke{Method: "x"}}))
	h.sync()

	h.send(protocol.BrowserDestroyed{})
	h.expect(protocol.ContextReleased{})
	h.send(protocol.Invoke{Method: "x"})
	h.sync()
	assert.Empty(t, h.app.BrowserIDs())
}

func TestQueuedDispatch(t *testing.T) {
	cfg := testConfig()
	cfg.QueuedDispatch = true
	cfg.TickInterval = 5 * time.Millisecond
	h := newHarness(t, cfg, nil)

	h.send(protocol.CreateGlobalObject{ID: "A", Name: "api"})
	h.send(protocol.CreateFunction{ID: "B", Name: "log", ParentID: "A"})
	h.send(protocol.Invoke{TargetID: "A", Method: "log", Args: []protocol.Value{protocol.String("queued")}})
	h.expect(protocol.MethodCall{
		TargetID:   "B",
		Method:     "log",
		Args:       []protocol.Value{protocol.String("queued")},
		CallbackID: protocol.NoCallback,
	})
}

func TestRunReturnsNilWhenPeerCloses(t *testing.T) {
	host, peer := channel.NewPipe()
	app := NewApp(peer, testConfig(), nil, nil, nil)

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()
	require.NoError(t, host.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
