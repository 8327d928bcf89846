package host

import (
	"context"
	"testing"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/channel"
	"github.com/GriffinCanCode/webbridge/internal/logging"
	"github.com/GriffinCanCode/webbridge/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// peer drives a System by hand: the test plays the renderer.
type peer struct {
	t   *testing.T
	sys *System
	end *channel.Pipe
}

func newPeer(t *testing.T, cfg Config) *peer {
	t.Helper()
	hostEnd, rendererEnd := channel.NewPipe()
	t.Cleanup(func() { hostEnd.Close() })
	return &peer{t: t, sys: NewSystem(hostEnd, cfg, logging.NewNop(), nil), end: rendererEnd}
}

func (p *peer) next() protocol.Envelope {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	env, err := p.end.Recv(ctx)
	require.NoError(p.t, err)
	return env
}

func (p *peer) expect(b *Browser, want protocol.Message) {
	p.t.Helper()
	env := p.next()
	assert.Equal(p.t, b.ID(), env.BrowserID)
	assert.Equal(p.t, want, env.Message)
}

func (p *peer) deliver(b *Browser, msg protocol.Message) {
	p.sys.Dispatch(protocol.Envelope{BrowserID: b.ID(), Message: msg})
}

// open creates a browser and brings it to Ready.
func (p *peer) open(opts BrowserOptions) *Browser {
	p.t.Helper()
	b, err := p.sys.CreateBrowser(opts)
	require.NoError(p.t, err)
	p.expect(b, protocol.BrowserCreated{})
	p.deliver(b, protocol.ContextCreated{})
	require.Equal(p.t, StateReady, b.State())
	return b
}

func TestBrowserNotReadyRejectsCalls(t *testing.T) {
	p := newPeer(t, DefaultConfig())

	b, err := p.sys.CreateBrowser(BrowserOptions{Name: "main"})
	require.NoError(t, err)
	p.expect(b, protocol.BrowserCreated{})
	assert.Equal(t, StateCreated, b.State())

	assert.Nil(t, b.CreateGlobalObject("api"))
	assert.Nil(t, b.CreateFunction("f", nil, false, nil))
	assert.False(t, b.Invoke(nil, "f"))
	assert.Nil(t, b.InvokeWithResult(nil, "f"))
	assert.Nil(t, b.ExecuteJavaScriptWithResult("1"))
	assert.False(t, b.SendCallbackReply(0))
	assert.Zero(t, b.PendingResults())

	// Navigation is allowed before the first context exists.
	assert.True(t, b.LoadURL("local:index.html"))
	p.expect(b, protocol.LoadURL{URL: "local:index.html"})
}

func TestBrowserBridgeCalls(t *testing.T) {
	p := newPeer(t, DefaultConfig())
	b := p.open(BrowserOptions{})

	api := b.CreateGlobalObject("api")
	require.NotNil(t, api)
	p.expect(b, protocol.CreateGlobalObject{ID: api.ID(), Name: "api"})

	fn := b.CreateFunction("fetch", api, true, nil)
	require.NotNil(t, fn)
	p.expect(b, protocol.CreateFunction{ID: fn.ID(), Name: "fetch", ParentID: api.ID(), HasCallback: true})

	require.True(t, b.Invoke(api, "run", protocol.Int(1)))
	p.expect(b, protocol.Invoke{TargetID: api.ID(), Method: "run", Args: []protocol.Value{protocol.Int(1)}})

	require.True(t, b.ExecuteJavaScript("go()", "boot.js", 3))
	p.expect(b, protocol.ExecuteJavaScript{Code: "go()", ScriptURL: "boot.js", StartLine: 3})

	require.True(t, b.SetAttr(nil, "flag", protocol.Bool(true)))
	p.expect(b, protocol.ObjectSetAttr{Attr: "flag", Value: protocol.Bool(true)})

	require.True(t, b.SendMouseEvent("mousedown", 4, 5, 1, 0))
	p.expect(b, protocol.InputEvent{Type: "mousedown", X: 4, Y: 5, Code: 1})

	require.True(t, b.SendKeyEvent("keydown", 13, 2))
	p.expect(b, protocol.InputEvent{Type: "keydown", Code: 13, Modifiers: 2})

	assert.Equal(t, "", b.Global().ID())
}

func TestBrowserResults(t *testing.T) {
	p := newPeer(t, DefaultConfig())
	b := p.open(BrowserOptions{})

	obj := b.InvokeWithResult(nil, "compute", protocol.String("x"))
	require.NotNil(t, obj)
	require.NotNil(t, obj.Result())
	assert.Equal(t, obj.ID(), obj.Result().ID())
	p.expect(b, protocol.InvokeWithResult{ResultID: obj.ID(), Method: "compute", Args: []protocol.Value{protocol.String("x")}})
	assert.Equal(t, 1, b.PendingResults())

	attr := b.GetAttr(obj, "length")
	require.NotNil(t, attr)
	p.expect(b, protocol.ObjectGetAttr{ID: obj.ID(), Attr: "length", ResultID: attr.ID()})

	p.deliver(b, protocol.InvokeResult{ResultID: obj.ID(), OK: true, Value: protocol.Int(7)})
	v, err := obj.Result().Value()
	require.NoError(t, err)
	assert.Equal(t, protocol.Int(7), v)

	p.deliver(b, protocol.InvokeResult{ResultID: attr.ID(), Error: "boom"})
	_, err = attr.Result().Value()
	assert.ErrorIs(t, err, ErrScript)
	assert.Contains(t, err.Error(), "boom")

	// Unknown and repeated results are ignored.
	p.deliver(b, protocol.InvokeResult{ResultID: obj.ID(), OK: true, Value: protocol.Int(8)})
	p.deliver(b, protocol.InvokeResult{ResultID: "nope", OK: true})
	v, _ = obj.Result().Value()
	assert.Equal(t, protocol.Int(7), v)
	assert.Zero(t, b.PendingResults())
}

func TestContextReleaseFailsPendingResults(t *testing.T) {
	p := newPeer(t, DefaultConfig())

	var created, released int
	b := p.open(BrowserOptions{Handlers: Handlers{
		OnContextCreated:  func(*Browser) { created++ },
		OnContextReleased: func(*Browser) { released++ },
	}})
	assert.Equal(t, 1, created)

	obj := b.ExecuteJavaScriptWithResult("slow()")
	require.NotNil(t, obj)
	p.next()

	p.deliver(b, protocol.ContextReleased{})
	assert.Equal(t, StateCreated, b.State())
	assert.Equal(t, 1, released)
	_, err := obj.Result().Value()
	assert.ErrorIs(t, err, ErrContextReleased)
	assert.False(t, b.Invoke(nil, "f"))

	p.deliver(b, protocol.ContextCreated{})
	assert.Equal(t, StateReady, b.State())
	assert.Equal(t, 2, created)
}

func TestBrowserClose(t *testing.T) {
	p := newPeer(t, DefaultConfig())
	b := p.open(BrowserOptions{Name: "main"})
	require.Equal(t, 1, p.sys.Count())

	obj := b.InvokeWithResult(nil, "f")
	require.NotNil(t, obj)
	p.next()

	b.Close()
	b.Close()
	p.expect(b, protocol.BrowserDestroyed{})

	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Frames().Closed())
	assert.Zero(t, p.sys.Count())
	_, err := obj.Result().Value()
	assert.ErrorIs(t, err, ErrBrowserClosed)

	assert.False(t, b.Invoke(nil, "f"))
	assert.False(t, b.LoadURL("local:x"))
	assert.False(t, b.Reload())
	assert.False(t, b.Ping())

	// A late context notification must not revive the browser.
	b.dispatch(protocol.ContextCreated{})
	assert.Equal(t, StateClosed, b.State())
}

func TestMethodCallRouting(t *testing.T) {
	p := newPeer(t, DefaultConfig())

	var fallback []*MethodCall
	b := p.open(BrowserOptions{Handlers: Handlers{
		OnMethodCall: func(call *MethodCall) { fallback = append(fallback, call) },
	}})

	var handled *MethodCall
	fn := b.CreateFunction("fetch", nil, true, func(call *MethodCall) {
		handled = call
		assert.True(t, call.Reply(protocol.String("ok")))
	})
	require.NotNil(t, fn)
	p.next()

	p.deliver(b, protocol.MethodCall{TargetID: fn.ID(), Method: "fetch", Args: []protocol.Value{protocol.Int(1)}, CallbackID: 4})
	require.NotNil(t, handled)
	assert.Same(t, fn, handled.Function)
	assert.Equal(t, []protocol.Value{protocol.Int(1)}, handled.Args)
	p.expect(b, protocol.CallbackReply{CallbackID: 4, Args: []protocol.Value{protocol.String("ok")}})

	plain := b.CreateFunction("notify", nil, false, nil)
	require.NotNil(t, plain)
	p.next()

	p.deliver(b, protocol.MethodCall{TargetID: plain.ID(), Method: "notify", CallbackID: protocol.NoCallback})
	p.deliver(b, protocol.MethodCall{TargetID: "gone", Method: "old", CallbackID: protocol.NoCallback})
	require.Len(t, fallback, 2)
	assert.Same(t, plain, fallback[0].Function)
	assert.False(t, fallback[0].HasCallback())
	assert.False(t, fallback[0].Reply(), "no callback to answer")
	assert.Nil(t, fallback[1].Function)
}

func TestFunctionsForgottenWithContext(t *testing.T) {
	p := newPeer(t, DefaultConfig())
	b := p.open(BrowserOptions{})

	calls := 0
	fn := b.CreateFunction("f", nil, false, func(*MethodCall) { calls++ })
	require.NotNil(t, fn)
	p.next()

	p.deliver(b, protocol.ContextReleased{})
	p.deliver(b, protocol.ContextCreated{})
	p.deliver(b, protocol.MethodCall{TargetID: fn.ID(), Method: "f", CallbackID: protocol.NoCallback})
	assert.Zero(t, calls)
}

func TestNavigationStopsCallsUntilNewContext(t *testing.T) {
	p := newPeer(t, DefaultConfig())

	var created, released int
	b := p.open(BrowserOptions{Handlers: Handlers{
		OnContextCreated:  func(*Browser) { created++ },
		OnContextReleased: func(*Browser) { released++ },
	}})

	require.True(t, b.LoadURL("about:blank"))
	p.expect(b, protocol.LoadURL{URL: "about:blank"})
	assert.Equal(t, StateCreated, b.State())
	assert.Equal(t, 1, released)
	assert.Nil(t, b.CreateFunction("f", nil, false, nil))
	assert.Nil(t, b.InvokeWithResult(nil, "g"))

	p.deliver(b, protocol.ContextReleased{})
	assert.Equal(t, 1, released)
	p.deliver(b, protocol.ContextCreated{})
	require.Equal(t, StateReady, b.State())
	assert.Equal(t, 2, created)

	calls := 0
	fn := b.CreateFunction("f", nil, false, func(*MethodCall) { calls++ })
	require.NotNil(t, fn)
	p.next()
	obj := b.InvokeWithResult(nil, "g")
	require.NotNil(t, obj)
	p.next()

	p.deliver(b, protocol.MethodCall{TargetID: fn.ID(), Method: "f", CallbackID: protocol.NoCallback})
	p.deliver(b, protocol.InvokeResult{ResultID: obj.ID(), OK: true, Value: protocol.Int(1)})
	assert.Equal(t, 1, calls)
	v, err := obj.Result().Value()
	require.NoError(t, err)
	assert.Equal(t, protocol.Int(1), v)
}

func TestRepliesInFlightSurviveNavigation(t *testing.T) {
	p := newPeer(t, DefaultConfig())
	b := p.open(BrowserOptions{})

	calls := 0
	fn := b.CreateFunction("f", nil, false, func(*MethodCall) { calls++ })
	require.NotNil(t, fn)
	p.next()
	answered := b.InvokeWithResult(nil, "fast")
	require.NotNil(t, answered)
	p.next()
	unanswered := b.InvokeWithResult(nil, "slow")
	require.NotNil(t, unanswered)
	p.next()

	require.True(t, b.Reload())
	p.expect(b, protocol.Reload{})

	// The old context still talks until the renderer releases it.
	p.deliver(b, protocol.MethodCall{TargetID: fn.ID(), Method: "f", CallbackID: protocol.NoCallback})
	p.deliver(b, protocol.InvokeResult{ResultID: answered.ID(), OK: true, Value: protocol.Int(2)})
	assert.Equal(t, 1, calls)
	v, err := answered.Result().Value()
	require.NoError(t, err)
	assert.Equal(t, protocol.Int(2), v)
	_, err = unanswered.Result().Value()
	assert.ErrorIs(t, err, ErrPending)

	p.deliver(b, protocol.ContextReleased{})
	_, err = unanswered.Result().Value()
	assert.ErrorIs(t, err, ErrContextReleased)
	assert.Zero(t, b.PendingResults())

	p.deliver(b, protocol.ContextCreated{})
	p.deliver(b, protocol.MethodCall{TargetID: fn.ID(), Method: "f", CallbackID: protocol.NoCallback})
	assert.Equal(t, 1, calls)
}

func TestInitialURLSkipsFirstContext(t *testing.T) {
	p := newPeer(t, DefaultConfig())

	created := 0
	b, err := p.sys.CreateBrowser(BrowserOptions{
		URL:      "local:index.html",
		Handlers: Handlers{OnContextCreated: func(*Browser) { created++ }},
	})
	require.NoError(t, err)
	p.expect(b, protocol.BrowserCreated{})
	p.expect(b, protocol.LoadURL{URL: "local:index.html"})

	// The renderer's first context is replaced by the initial page.
	p.deliver(b, protocol.ContextCreated{})
	assert.Equal(t, StateCreated, b.State())
	assert.Zero(t, created)
	p.deliver(b, protocol.ContextReleased{})
	p.deliver(b, protocol.ContextCreated{})
	require.Equal(t, StateReady, b.State())
	assert.Equal(t, 1, created)

	calls := 0
	fn := b.CreateFunction("f", nil, false, func(*MethodCall) { calls++ })
	require.NotNil(t, fn)
	p.next()
	p.deliver(b, protocol.MethodCall{TargetID: fn.ID(), Method: "f", CallbackID: protocol.NoCallback})
	assert.Equal(t, 1, calls)
}

func TestLoadURLPolicy(t *testing.T) {
	p := newPeer(t, DefaultConfig())

	var opened []string
	b := p.open(BrowserOptions{
		Policy:   NavigationPolicy{Mode: NavigateOnlyLocal},
		Handlers: Handlers{OnOpenURL: func(_ *Browser, url string) { opened = append(opened, url) }},
	})

	assert.False(t, b.LoadURL("https://example.com"))
	assert.Equal(t, []string{"https://example.com"}, opened)
	assert.Equal(t, "", b.URL())

	assert.True(t, b.LoadURL("local:ui/index.html"))
	p.expect(b, protocol.LoadURL{URL: "local:ui/index.html"})
	assert.Equal(t, "local:ui/index.html", b.URL())

	assert.True(t, b.Reload())
	p.expect(b, protocol.Reload{})
}

func TestCreateBrowserLoadsInitialURL(t *testing.T) {
	p := newPeer(t, DefaultConfig())

	b, err := p.sys.CreateBrowser(BrowserOptions{URL: "local:index.html"})
	require.NoError(t, err)
	p.expect(b, protocol.BrowserCreated{})
	p.expect(b, protocol.LoadURL{URL: "local:index.html"})

	_, err = p.sys.CreateBrowser(BrowserOptions{Policy: NavigationPolicy{Allow: []string{"[bad"}}})
	assert.Error(t, err)
}

func TestRendererMessagesReachHandlers(t *testing.T) {
	p := newPeer(t, DefaultConfig())

	var logs, warnings []string
	b := p.open(BrowserOptions{Handlers: Handlers{
		OnLog:     func(_ *Browser, text string) { logs = append(logs, text) },
		OnWarning: func(_ *Browser, text string) { warnings = append(warnings, text) },
	}})

	p.deliver(b, protocol.Log{Text: "hello"})
	p.deliver(b, protocol.Warning{Text: "careful"})
	assert.Equal(t, []string{"hello"}, logs)
	assert.Equal(t, []string{"careful"}, warnings)

	p.deliver(b, protocol.Ping{})
	p.expect(b, protocol.Pong{})
}

func TestStartupHeartbeat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LaunchTimeout = time.Minute
	p := newPeer(t, cfg)

	b, err := p.sys.CreateBrowser(BrowserOptions{})
	require.NoError(t, err)
	p.expect(b, protocol.BrowserCreated{})

	p.sys.Update(time.Now())
	p.expect(b, protocol.Ping{})
	assert.False(t, b.Heartbeat().LastPing().IsZero())

	p.deliver(b, protocol.Pong{})
	p.deliver(b, protocol.ContextCreated{})
	p.sys.Update(time.Now())
	assert.True(t, b.Heartbeat().Started())
	assert.False(t, b.LastPong().IsZero())

	p.sys.Update(time.Now().Add(time.Hour))
	assert.Equal(t, StateReady, b.State())
}

func TestStartupFatal(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(p *peer, b *Browser)
		want    error
	}{
		{"no pong", func(*peer, *Browser) {}, ErrRendererUnavailable},
		{"pong but no context", func(p *peer, b *Browser) { p.deliver(b, protocol.Pong{}) }, ErrCreateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.LaunchTimeout = time.Second
			p := newPeer(t, cfg)

			var fatal []error
			b, err := p.sys.CreateBrowser(BrowserOptions{Handlers: Handlers{
				OnFatal: func(_ *Browser, err error) { fatal = append(fatal, err) },
			}})
			require.NoError(t, err)
			tt.prepare(p, b)

			later := time.Now().Add(2 * time.Second)
			p.sys.Update(later)
			p.sys.Update(later)

			require.Len(t, fatal, 1)
			assert.ErrorIs(t, fatal[0], tt.want)
			assert.Equal(t, StateClosed, b.State())
			assert.Zero(t, p.sys.Count())
		})
	}
}

func TestSystemBrowserList(t *testing.T) {
	p := newPeer(t, DefaultConfig())

	first, err := p.sys.CreateBrowser(BrowserOptions{Name: "hud"})
	require.NoError(t, err)
	second, err := p.sys.CreateBrowser(BrowserOptions{Name: "menu"})
	require.NoError(t, err)

	assert.Equal(t, 2, p.sys.Count())
	assert.Equal(t, []*Browser{first, second}, p.sys.Browsers())

	found, ok := p.sys.FindBrowser("menu")
	require.True(t, ok)
	assert.Same(t, second, found)
	_, ok = p.sys.FindBrowser("missing")
	assert.False(t, ok)

	byID, ok := p.sys.Browser(first.ID())
	require.True(t, ok)
	assert.Same(t, first, byID)

	p.sys.Shutdown()
	assert.Zero(t, p.sys.Count())

	// Messages for browsers that are gone are dropped.
	p.sys.Dispatch(protocol.Envelope{BrowserID: first.ID(), Message: protocol.Log{Text: "late"}})
}

func TestCreateBrowserOnClosedChannel(t *testing.T) {
	p := newPeer(t, DefaultConfig())
	p.end.Close()

	_, err := p.sys.CreateBrowser(BrowserOptions{})
	assert.ErrorIs(t, err, channel.ErrClosed)
	assert.Zero(t, p.sys.Count())
}
