package protocol

// Tag names a wire record kind.
type Tag string

const (
	TagCreateGlobalObject          Tag = "create-global-object"
	TagCreateFunction              Tag = "create-function"
	TagCreateFunctionWithCallback  Tag = "create-function-with-callback"
	TagInvoke                      Tag = "invoke"
	TagInvokeWithResult            Tag = "invoke-with-result"
	TagMethodCall                  Tag = "method-call"
	TagCallbackReply               Tag = "callback-reply"
	TagPing                        Tag = "heartbeat-ping"
	TagPong                        Tag = "heartbeat-pong"
	TagLog                         Tag = "log"
	TagWarning                     Tag = "warning"
	TagInvokeResult                Tag = "invoke-result"
	TagExecuteJavaScript           Tag = "execute-javascript"
	TagExecuteJavaScriptWithResult Tag = "execute-javascript-with-result"
	TagObjectSetAttr               Tag = "object-set-attr"
	TagObjectGetAttr               Tag = "object-get-attr"
	TagBrowserCreated              Tag = "browser-created"
	TagBrowserDestroyed            Tag = "browser-destroyed"
	TagLoadURL                     Tag = "load-url"
	TagReload                      Tag = "reload"
	TagContextCreated              Tag = "context-created"
	TagContextReleased             Tag = "context-released"
	TagInputEvent                  Tag = "input-event"
)

// Direction tells which side may emit a tag.
type Direction uint8

const (
	HostToScript Direction = iota + 1
	ScriptToHost
	Bidirectional
)

// Direction returns the permitted direction of the tag, or 0 for unknown tags.
func (t Tag) Direction() Direction {
	switch t {
	case TagCreateGlobalObject, TagCreateFunction, TagCreateFunctionWithCallback,
		TagInvoke, TagInvokeWithResult, TagCallbackReply, TagExecuteJavaScript,
		TagExecuteJavaScriptWithResult, TagObjectSetAttr, TagObjectGetAttr,
		TagBrowserCreated, TagBrowserDestroyed, TagLoadURL, TagReload, TagInputEvent:
		return HostToScript
	case TagMethodCall, TagLog, TagWarning, TagInvokeResult, TagContextCreated, TagContextReleased:
		return ScriptToHost
	case TagPing, TagPong:
		return Bidirectional
	}
	return 0
}

// CallbackID correlates a callback-bearing method call with its reply.
type CallbackID int64

// NoCallback is the in-memory sentinel for a method call without a callback.
// On the wire it is null.
const NoCallback CallbackID = -1

// Message is one decoded wire record. The set of implementations is closed:
// every variant lives in this file.
type Message interface {
	Tag() Tag
	args() []Value
}

// Envelope addresses a message to one browser instance.
type Envelope struct {
	BrowserID string
	Message   Message
}

// CreateGlobalObject attaches a fresh object to the global scope.
type CreateGlobalObject struct {
	ID   string
	Name string
}

// CreateFunction binds a native-backed function onto a parent object
// (the global scope when ParentID is empty).
type CreateFunction struct {
	ID          string
	Name        string
	ParentID    string
	HasCallback bool
}

// Invoke calls Method on a registered object and discards the result.
type Invoke struct {
	TargetID string
	Method   string
	Args     []Value
}

// InvokeWithResult is Invoke that registers the return value under ResultID.
type InvokeWithResult struct {
	ResultID string
	TargetID string
	Method   string
	Args     []Value
}

// MethodCall reports a script call into a host-installed function.
type MethodCall struct {
	TargetID   string
	Method     string
	Args       []Value
	CallbackID CallbackID
}

// HasCallback reports whether the script is waiting on a callback reply.
func (m MethodCall) HasCallback() bool { return m.CallbackID != NoCallback }

// CallbackReply hands the host's answer to a pending script callback.
type CallbackReply struct {
	CallbackID CallbackID
	Args       []Value
}

type Ping struct{}

type Pong struct{}

// Log carries informational text from the script side.
type Log struct {
	Text string
}

// Warning carries a diagnostic from the script side.
type Warning struct {
	Text string
}

// InvokeResult settles the host future created by InvokeWithResult,
// ExecuteJavaScriptWithResult or ObjectGetAttr.
type InvokeResult struct {
	ResultID string
	OK       bool
	Value    Value
	Error    string
}

type ExecuteJavaScript struct {
	Code      string
	ScriptURL string
	StartLine int64
}

type ExecuteJavaScriptWithResult struct {
	ResultID string
	Code     string
}

type ObjectSetAttr struct {
	ID    string
	Attr  string
	Value Value
}

type ObjectGetAttr struct {
	ID       string
	Attr     string
	ResultID string
}

type BrowserCreated struct{}

type BrowserDestroyed struct{}

type LoadURL struct {
	URL string
}

type Reload struct{}

type ContextCreated struct{}

type ContextReleased struct{}

// InputEvent is a mouse or keyboard event injected by the host.
type InputEvent struct {
	Type      string
	X         int64
	Y         int64
	Code      int64
	Modifiers int64
}

func (CreateGlobalObject) Tag() Tag { return TagCreateGlobalObject }
func (m CreateFunction) Tag() Tag {
	if m.HasCallback {
		return TagCreateFunctionWithCallback
	}
	return TagCreateFunction
}
func (Invoke) Tag() Tag                      { return TagInvoke }
func (InvokeWithResult) Tag() Tag            { return TagInvokeWithResult }
func (MethodCall) Tag() Tag                  { return TagMethodCall }
func (CallbackReply) Tag() Tag               { return TagCallbackReply }
func (Ping) Tag() Tag                        { return TagPing }
func (Pong) Tag() Tag                        { return TagPong }
func (Log) Tag() Tag                         { return TagLog }
func (Warning) Tag() Tag                     { return TagWarning }
func (InvokeResult) Tag() Tag                { return TagInvokeResult }
func (ExecuteJavaScript) Tag() Tag           { return TagExecuteJavaScript }
func (ExecuteJavaScriptWithResult) Tag() Tag { return TagExecuteJavaScriptWithResult }
func (ObjectSetAttr) Tag() Tag               { return TagObjectSetAttr }
func (ObjectGetAttr) Tag() Tag               { return TagObjectGetAttr }
func (BrowserCreated) Tag() Tag              { return TagBrowserCreated }
func (BrowserDestroyed) Tag() Tag            { return TagBrowserDestroyed }
func (LoadURL) Tag() Tag                     { return TagLoadURL }
func (Reload) Tag() Tag                      { return TagReload }
func (ContextCreated) Tag() Tag              { return TagContextCreated }
func (ContextReleased) Tag() Tag             { return TagContextReleased }
func (InputEvent) Tag() Tag                  { return TagInputEvent }

func (m CreateGlobalObject) args() []Value {
	return []Value{String(m.ID), String(m.Name)}
}

func (m CreateFunction) args() []Value {
	return []Value{String(m.ID), String(m.Name), String(m.ParentID)}
}

func (m Invoke) args() []Value {
	return []Value{String(m.TargetID), String(m.Method), List(m.Args...)}
}

func (m InvokeWithResult) args() []Value {
	return []Value{String(m.ResultID), String(m.TargetID), String(m.Method), List(m.Args...)}
}

func (m MethodCall) args() []Value {
	call := make([]Value, 0, len(m.Args)+1)
	call = append(call, String(m.Method))
	call = append(call, m.Args...)
	id := Null()
	if m.HasCallback() {
		id = Int(int64(m.CallbackID))
	}
	return []Value{String(m.TargetID), List(call...), id}
}

func (m CallbackReply) args() []Value {
	return []Value{Int(int64(m.CallbackID)), List(m.Args...)}
}

func (Ping) args() []Value             { return nil }
func (Pong) args() []Value             { return nil }
func (m Log) args() []Value            { return []Value{String(m.Text)} }
func (m Warning) args() []Value        { return []Value{String(m.Text)} }
func (BrowserCreated) args() []Value   { return nil }
func (BrowserDestroyed) args() []Value { return nil }
func (m LoadURL) args() []Value        { return []Value{String(m.URL)} }
func (Reload) args() []Value           { return nil }
func (ContextCreated) args() []Value   { return nil }
func (ContextReleased) args() []Value  { return nil }

func (m InvokeResult) args() []Value {
	return []Value{String(m.ResultID), Bool(m.OK), m.Value, String(m.Error)}
}

func (m ExecuteJavaScript) args() []Value {
	return []Value{String(m.Code), String(m.ScriptURL), Int(m.StartLine)}
}

func (m ExecuteJavaScriptWithResult) args() []Value {
	return []Value{String(m.ResultID), String(m.Code)}
}

func (m ObjectSetAttr) args() []Value {
	return []Value{String(m.ID), String(m.Attr), m.Value}
}

func (m ObjectGetAttr) args() []Value {
	return []Value{String(m.ID), String(m.Attr), String(m.ResultID)}
}

func (m InputEvent) args() []Value {
	return []Value{String(m.Type), Int(m.X), Int(m.Y), Int(m.Code), Int(m.Modifiers)}
}
