package renderer

import (
	"strconv"
	"testing"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/logging"
	"github.com/GriffinCanCode/webbridge/internal/protocol"
	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	msgs []protocol.Message
}

func (r *recorder) send(msg protocol.Message) { r.msgs = append(r.msgs, msg) }

func newTestContext(t *testing.T) (*Context, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := newContext("brw_ctx", testConfig(), rec.send, logging.NewNop(), nil)
	require.NoError(t, c.Init())
	return c, rec
}

func TestContextLifecycle(t *testing.T) {
	rec := &recorder{}
	c := newContext("brw_ctx", testConfig(), rec.send, logging.NewNop(), nil)
	assert.Equal(t, StateUninitialized, c.State())
	assert.False(t, c.CreateGlobalObject("A", "api"))

	require.NoError(t, c.Init())
	assert.Equal(t, StateActive, c.State())
	assert.Error(t, c.Init())

	c.Destroy()
	assert.Equal(t, StateDestroyed, c.State())
	c.Destroy()
	assert.Equal(t, StateDestroyed, c.State())

	// Destroyed contexts are never resurrected.
	assert.Error(t, c.Init())
	assert.False(t, c.CreateGlobalObject("A", "api"))
	assert.False(t, c.CreateFunction("B", "f", "", false))
	assert.False(t, c.Invoke("", "f", nil))
	assert.False(t, c.Execute("1", "", 1))
	assert.False(t, c.CallbackReply(0, nil))
}

func TestContextGlobals(t *testing.T) {
	c, _ := newTestContext(t)

	require.True(t, c.CreateGlobalObject("A", "api"))
	obj, ok := c.Global("api")
	require.True(t, ok)

	registered, ok := c.objects.Find("A")
	require.True(t, ok)
	assert.Same(t, obj, registered.(*goja.Object))
	assert.True(t, c.vm.GlobalObject().Get("api").StrictEquals(obj))
}

func TestContextReRegisterReplaces(t *testing.T) {
	c, _ := newTestContext(t)

	require.True(t, c.CreateGlobalObject("A", "first"))
	require.True(t, c.CreateGlobalObject("A", "second"))

	second, _ := c.Global("second")
	h, ok := c.objects.Find("A")
	require.True(t, ok)
	assert.True(t, h.StrictEquals(second))
	assert.Equal(t, 1, c.objects.Len())
}

func TestContextDestroyPurges(t *testing.T) {
	c, rec := newTestContext(t)

	require.True(t, c.CreateFunction("F", "fetch", "", true))
	require.True(t, c.Execute(`fetch(function() {}); fetch(function() {})`, "t.js", 1))
	assert.Equal(t, 2, c.PendingCallbacks())
	require.Len(t, rec.msgs, 2)

	first := rec.msgs[0].(protocol.MethodCall).CallbackID
	second := rec.msgs[1].(protocol.MethodCall).CallbackID
	assert.Greater(t, second, first)

	c.Destroy()
	assert.Equal(t, 0, c.PendingCallbacks())
	assert.Equal(t, 0, c.objects.Len())
	assert.False(t, c.CallbackReply(first, nil))
}

func TestExecuteStartLine(t *testing.T) {
	c, rec := newTestContext(t)

	require.True(t, c.CreateFunction("F", "report", "", false))
	require.True(t, c.Execute("report(new Error('x').stack)", "page.js", 40))
	require.Len(t, rec.msgs, 1)

	call := rec.msgs[0].(protocol.MethodCall)
	require.Len(t, call.Args, 1)
	assert.Contains(t, call.Args[0].Str(), "page.js:40")
}

func TestExecuteStartLineOutOfRange(t *testing.T) {
	c, rec := newTestContext(t)

	require.True(t, c.CreateFunction("F", "report", "", false))
	require.True(t, c.Execute("report(new Error('x').stack)", "page.js", 1<<40))
	require.Len(t, rec.msgs, 2)

	w, ok := rec.msgs[0].(protocol.Warning)
	require.True(t, ok, "got %#v", rec.msgs[0])
	assert.Contains(t, w.Text, "out of range")

	call := rec.msgs[1].(protocol.MethodCall)
	require.Len(t, call.Args, 1)
	assert.Contains(t, call.Args[0].Str(), "page.js:1:")
}

func TestTimeoutDoesNotLeakIntoNextScript(t *testing.T) {
	c, _ := newTestContext(t)

	for i := 0; i < 200; i++ {
		// Finishes right around the deadline, so some runs race the timer.
		c.config.ScriptTimeout = time.Millisecond
		_, _ = c.execute(`var t0 = Date.now(); while (Date.now() - t0 < 1) {}`, "", 1)

		c.config.ScriptTimeout = 0
		_, err := c.execute("1", "", 1)
		require.NoError(t, err, "run %d", i)
	}
}

func TestToWire(t *testing.T) {
	vm := goja.New()

	tests := []struct {
		script string
		want   protocol.Value
		ok     bool
	}{
		{"null", protocol.Null(), true},
		{"undefined", protocol.Null(), true},
		{"true", protocol.Bool(true), true},
		{"42", protocol.Int(42), true},
		{"-0.5", protocol.Float(-0.5), true},
		{"'s'", protocol.String("s"), true},
		{"[1, [2, 'x']]", protocol.List(protocol.Int(1), protocol.List(protocol.Int(2), protocol.String("x"))), true},
		{"({})", protocol.Null(), false},
		{"(function() {})", protocol.Null(), false},
		{"[1, {}]", protocol.List(protocol.Int(1), protocol.Null()), false},
		{"(function() { var x = [1]; return [x, x] })()", protocol.List(protocol.List(protocol.Int(1)), protocol.List(protocol.Int(1))), true},
		{"(function() { var a = [1]; a.push(a); return a })()", protocol.List(protocol.Int(1), protocol.Null()), false},
		{"(function() { var a = []; a.length = 4e9; return a })()", protocol.Null(), false},
	}
	for _, tt := range tests {
		t.Run(tt.script, func(t *testing.T) {
			v, err := vm.RunString(tt.script)
			require.NoError(t, err)
			got, ok := toWire(v)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestToWireDepthLimit(t *testing.T) {
	vm := goja.New()

	nest := func(depth int) goja.Value {
		v, err := vm.RunString(`(function(n) { var a = []; for (var i = 0; i < n; i++) { a = [a] } return a })(` + strconv.Itoa(depth) + `)`)
		require.NoError(t, err)
		return v
	}

	_, ok := toWire(nest(maxListDepth - 1))
	assert.True(t, ok)

	got, ok := toWire(nest(maxListDepth + 10))
	assert.False(t, ok)
	for i := 0; i < maxListDepth; i++ {
		require.Equal(t, protocol.KindList, got.Kind(), "level %d", i)
		require.Equal(t, 1, got.Len())
		got = got.Items()[0]
	}
	assert.True(t, got.IsNull())
}

func TestFromWireRoundTrip(t *testing.T) {
	vm := goja.New()
	in := protocol.List(protocol.Null(), protocol.Bool(false), protocol.Int(-3), protocol.Float(0.25), protocol.String("é"), protocol.List())

	out, ok := toWire(fromWire(vm, in))
	require.True(t, ok)
	assert.True(t, in.Equal(out), "got %s", out)
}
