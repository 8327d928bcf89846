package renderer

import (
	"github.com/GriffinCanCode/webbridge/internal/logging"
	"github.com/GriffinCanCode/webbridge/internal/protocol"
	"github.com/GriffinCanCode/webbridge/internal/resource"
	"go.uber.org/zap"
)

// Browser is the renderer side of one host browser. It owns the current
// Context and replaces it on every navigation.
type Browser struct {
	id  string
	app *App
	ctx *Context
	url string

	logger *logging.Logger
}

func newBrowser(app *App, id string) *Browser {
	b := &Browser{
		id:     id,
		app:    app,
		logger: app.logger.ForBrowser(id),
	}
	b.newContext()
	return b
}

// ID returns the browser identifier assigned by the host.
func (b *Browser) ID() string { return b.id }

// Context returns the current script context.
func (b *Browser) Context() *Context { return b.ctx }

// URL returns the last url loaded.
func (b *Browser) URL() string { return b.url }

func (b *Browser) send(msg protocol.Message) {
	b.app.send(b.id, msg)
}

func (b *Browser) newContext() {
	b.ctx = newContext(b.id, b.app.config, b.send, b.logger, b.app.metrics)
	if err := b.ctx.Init(); err != nil {
		b.logger.Error("Failed to initialize context", zap.Error(err))
		return
	}
	b.send(protocol.ContextCreated{})
}

func (b *Browser) releaseContext() {
	if b.ctx == nil {
		return
	}
	b.ctx.Destroy()
	b.send(protocol.ContextReleased{})
}

// navigate tears down the current context and loads url into a fresh one.
func (b *Browser) navigate(url string) {
	b.releaseContext()
	b.newContext()
	b.url = url

	if url == "" || url == resource.BlankURL {
		return
	}
	if b.app.loader == nil {
		b.ctx.warn("cannot load %s: no resource loader", url)
		return
	}
	page, err := b.app.loader.Load(url)
	if err != nil {
		b.ctx.warn("load %s: %v", url, err)
		return
	}
	b.ctx.RunPage(page)
	b.logger.Info("Page loaded", zap.String("url", url), zap.Int("scripts", len(page.Scripts)))
}

func (b *Browser) close() {
	b.releaseContext()
	b.ctx = nil
}

// dispatch handles one host message for this browser.
func (b *Browser) dispatch(msg protocol.Message) {
	ctx := b.ctx
	if ctx == nil {
		b.logger.Debug("Message for closed browser dropped", zap.String("tag", string(msg.Tag())))
		return
	}

	switch m := msg.(type) {
	case protocol.CreateGlobalObject:
		ctx.CreateGlobalObject(m.ID, m.Name)
	case protocol.CreateFunction:
		ctx.CreateFunction(m.ID, m.Name, m.ParentID, m.HasCallback)
	case protocol.Invoke:
		ctx.Invoke(m.TargetID, m.Method, m.Args)
	case protocol.InvokeWithResult:
		ctx.InvokeWithResult(m.ResultID, m.TargetID, m.Method, m.Args)
	case protocol.CallbackReply:
		ctx.CallbackReply(m.CallbackID, m.Args)
	case protocol.ExecuteJavaScript:
		ctx.Execute(m.Code, m.ScriptURL, m.StartLine)
	case protocol.ExecuteJavaScriptWithResult:
		ctx.ExecuteWithResult(m.ResultID, m.Code)
	case protocol.ObjectSetAttr:
		ctx.SetAttr(m.ID, m.Attr, m.Value)
	case protocol.ObjectGetAttr:
		ctx.GetAttr(m.ID, m.Attr, m.ResultID)
	case protocol.InputEvent:
		ctx.DispatchInput(m)
	case protocol.LoadURL:
		b.navigate(m.URL)
	case protocol.Reload:
		b.navigate(b.url)
	default:
		b.logger.Warn("Unexpected message for renderer", zap.String("tag", string(msg.Tag())))
	}
}
