package protocol

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var (
	ErrMalformed  = errors.New("malformed frame")
	ErrUnknownTag = errors.New("unknown tag")
)

// frame is the JSON shape of one record: positional arguments per tag.
type frame struct {
	Browser string  `json:"browser,omitempty"`
	Tag     Tag     `json:"tag"`
	Args    []Value `json:"args"`
}

type rawFrame struct {
	Browser string `json:"browser"`
	Tag     Tag    `json:"tag"`
	Args    []any  `json:"args"`
}

// Encode serializes an envelope into a single JSON frame.
func Encode(env Envelope) ([]byte, error) {
	if env.Message == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	args := env.Message.args()
	if args == nil {
		args = []Value{}
	}
	return sonic.Marshal(frame{
		Browser: env.BrowserID,
		Tag:     env.Message.Tag(),
		Args:    args,
	})
}

// Decode parses one frame into its typed message.
func Decode(data []byte) (Envelope, error) {
	var raw rawFrame
	if err := numberAPI.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	args := make([]Value, len(raw.Args))
	for i, a := range raw.Args {
		v, err := fromJSON(a)
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: arg %d: %v", ErrMalformed, i, err)
		}
		args[i] = v
	}

	msg, err := decodeMessage(raw.Tag, args)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{BrowserID: raw.Browser, Message: msg}, nil
}

func decodeMessage(tag Tag, args []Value) (Message, error) {
	r := argReader{tag: tag, args: args}

	var msg Message
	switch tag {
	case TagCreateGlobalObject:
		r.arity(2)
		msg = CreateGlobalObject{ID: r.str(0), Name: r.str(1)}
	case TagCreateFunction, TagCreateFunctionWithCallback:
		r.arity(3)
		msg = CreateFunction{
			ID:          r.str(0),
			Name:        r.str(1),
			ParentID:    r.optStr(2),
			HasCallback: tag == TagCreateFunctionWithCallback,
		}
	case TagInvoke:
		r.arity(3)
		msg = Invoke{TargetID: r.optStr(0), Method: r.str(1), Args: r.list(2)}
	case TagInvokeWithResult:
		r.arity(4)
		msg = InvokeWithResult{ResultID: r.str(0), TargetID: r.optStr(1), Method: r.str(2), Args: r.list(3)}
	case TagMethodCall:
		r.arity(3)
		call := r.list(1)
		m := MethodCall{TargetID: r.str(0), CallbackID: r.callbackID(2)}
		if len(call) == 0 || call[0].Kind() != KindString {
			r.fail("method-call list must start with the method name")
		} else {
			m.Method = call[0].Str()
			if len(call) > 1 {
				m.Args = call[1:]
			}
		}
		msg = m
	case TagCallbackReply:
		r.arity(2)
		id := r.callbackID(0)
		if id == NoCallback {
			r.fail("callback-reply requires a callback id")
		}
		msg = CallbackReply{CallbackID: id, Args: r.list(1)}
	case TagPing:
		msg = Ping{}
	case TagPong:
		msg = Pong{}
	case TagLog:
		r.arity(1)
		msg = Log{Text: r.str(0)}
	case TagWarning:
		r.arity(1)
		msg = Warning{Text: r.str(0)}
	case TagInvokeResult:
		r.arity(4)
		msg = InvokeResult{ResultID: r.str(0), OK: r.boolean(1), Value: r.value(2), Error: r.optStr(3)}
	case TagExecuteJavaScript:
		r.arity(3)
		msg = ExecuteJavaScript{Code: r.str(0), ScriptURL: r.optStr(1), StartLine: r.integer(2)}
	case TagExecuteJavaScriptWithResult:
		r.arity(2)
		msg = ExecuteJavaScriptWithResult{ResultID: r.str(0), Code: r.str(1)}
	case TagObjectSetAttr:
		r.arity(3)
		msg = ObjectSetAttr{ID: r.optStr(0), Attr: r.str(1), Value: r.value(2)}
	case TagObjectGetAttr:
		r.arity(3)
		msg = ObjectGetAttr{ID: r.optStr(0), Attr: r.str(1), ResultID: r.str(2)}
	case TagBrowserCreated:
		msg = BrowserCreated{}
	case TagBrowserDestroyed:
		msg = BrowserDestroyed{}
	case TagLoadURL:
		r.arity(1)
		msg = LoadURL{URL: r.str(0)}
	case TagReload:
		msg = Reload{}
	case TagContextCreated:
		msg = ContextCreated{}
	case TagContextReleased:
		msg = ContextReleased{}
	case TagInputEvent:
		r.arity(5)
		msg = InputEvent{
			Type:      r.str(0),
			X:         r.integer(1),
			Y:         r.integer(2),
			Code:      r.integer(3),
			Modifiers: r.integer(4),
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}

	if r.err != nil {
		return nil, r.err
	}
	return msg, nil
}

// argReader pulls typed positional arguments and remembers the first problem.
type argReader struct {
	tag  Tag
	args []Value
	err  error
}

func (r *argReader) fail(format string, a ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s: %s", ErrMalformed, r.tag, fmt.Sprintf(format, a...))
	}
}

func (r *argReader) arity(n int) {
	if len(r.args) < n {
		r.fail("expected %d args, got %d", n, len(r.args))
	}
}

func (r *argReader) at(i int) (Value, bool) {
	if i >= len(r.args) {
		return Null(), false
	}
	return r.args[i], true
}

func (r *argReader) str(i int) string {
	v, ok := r.at(i)
	if !ok {
		return ""
	}
	if v.Kind() != KindString {
		r.fail("arg %d: expected string, got %s", i, v.Kind())
		return ""
	}
	return v.Str()
}

// optStr accepts a string or null (null reads as empty).
func (r *argReader) optStr(i int) string {
	v, ok := r.at(i)
	if !ok || v.IsNull() {
		return ""
	}
	return r.str(i)
}

func (r *argReader) boolean(i int) bool {
	v, ok := r.at(i)
	if !ok {
		return false
	}
	if v.Kind() != KindBool {
		r.fail("arg %d: expected bool, got %s", i, v.Kind())
	}
	return v.Bool()
}

func (r *argReader) integer(i int) int64 {
	v, ok := r.at(i)
	if !ok {
		return 0
	}
	if v.Kind() != KindInt {
		r.fail("arg %d: expected int, got %s", i, v.Kind())
	}
	return v.Int()
}

func (r *argReader) list(i int) []Value {
	v, ok := r.at(i)
	if !ok {
		return nil
	}
	if v.Kind() != KindList {
		r.fail("arg %d: expected list, got %s", i, v.Kind())
		return nil
	}
	return v.Items()
}

func (r *argReader) value(i int) Value {
	v, _ := r.at(i)
	return v
}

func (r *argReader) callbackID(i int) CallbackID {
	v, ok := r.at(i)
	if !ok || v.IsNull() {
		return NoCallback
	}
	if v.Kind() != KindInt || v.Int() < 0 {
		r.fail("arg %d: expected callback id, got %s", i, v)
		return NoCallback
	}
	return CallbackID(v.Int())
}
