package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/channel"
	"github.com/GriffinCanCode/webbridge/internal/host"
	"github.com/GriffinCanCode/webbridge/internal/resource"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BrowserInfo is the /browsers view of one host browser.
type BrowserInfo struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	State          string     `json:"state"`
	URL            string     `json:"url"`
	Started        bool       `json:"started"`
	PendingResults int        `json:"pending_results"`
	LastPong       *time.Time `json:"last_pong,omitempty"`
}

func browserInfo(b *host.Browser) BrowserInfo {
	info := BrowserInfo{
		ID:             b.ID(),
		Name:           b.Name(),
		State:          b.State().String(),
		URL:            b.URL(),
		Started:        b.Heartbeat().Started(),
		PendingResults: b.PendingResults(),
	}
	if pong := b.LastPong(); !pong.IsZero() {
		info.LastPong = &pong
	}
	return info
}

type handlers struct {
	opts    Options
	started time.Time
}

func newHandlers(opts Options, started time.Time) *handlers {
	return &handlers{opts: opts, started: started}
}

func (h *handlers) browsers() []*host.Browser {
	if h.opts.Systems == nil {
		return nil
	}
	var list []*host.Browser
	for _, sys := range h.opts.Systems() {
		list = append(list, sys.Browsers()...)
	}
	return list
}

// Root handles the root endpoint
func (h *handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "webbridge host",
	})
}

// Health reports renderer connectivity and bridge counters.
func (h *handlers) Health(c *gin.Context) {
	systems := 0
	if h.opts.Systems != nil {
		systems = len(h.opts.Systems())
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"uptime_seconds": time.Since(h.started).Seconds(),
		"renderers":      systems,
		"browsers":       len(h.browsers()),
		"metrics":        h.opts.Metrics.Snapshot(),
	})
}

// ListBrowsers lists every live browser
func (h *handlers) ListBrowsers(c *gin.Context) {
	list := h.browsers()
	infos := make([]BrowserInfo, 0, len(list))
	for _, b := range list {
		infos = append(infos, browserInfo(b))
	}
	c.JSON(http.StatusOK, gin.H{
		"browsers": infos,
		"count":    len(infos),
	})
}

// Metrics exposes the Prometheus registry.
func (h *handlers) Metrics(g prometheus.Gatherer) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}

// AttachRenderer upgrades to a websocket and hands the frame channel to
// Options.Attach. The request stays open until the channel closes.
func (h *handlers) AttachRenderer(c *gin.Context) {
	ch, err := channel.AcceptWebSocket(c.Writer, c.Request, h.opts.ChannelOptions...)
	if err != nil {
		h.opts.Logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	h.opts.Metrics.IncWSConnections()
	defer h.opts.Metrics.DecWSConnections()

	h.opts.Logger.Info("Renderer attached", zap.String("remote", c.ClientIP()))
	h.opts.Attach(ch)
	<-ch.Done()
	h.opts.Logger.Info("Renderer detached", zap.String("remote", c.ClientIP()))
}

// Local serves files below the resource root, as the renderer sees them
// through local: urls.
func (h *handlers) Local(c *gin.Context) {
	data, mime, err := h.opts.Loader.Read(resource.SchemeLocal + c.Param("path"))
	switch {
	case errors.Is(err, resource.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, resource.ErrOutsideRoot):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	contentType := "application/octet-stream"
	if mime != nil {
		contentType = mime.String()
	}
	c.Data(http.StatusOK, contentType, data)
}
