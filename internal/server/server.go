package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/channel"
	"github.com/GriffinCanCode/webbridge/internal/host"
	"github.com/GriffinCanCode/webbridge/internal/logging"
	"github.com/GriffinCanCode/webbridge/internal/monitoring"
	"github.com/GriffinCanCode/webbridge/internal/resource"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config contains server configuration
type Config struct {
	Host      string
	Port      string
	CORS      CORSConfig
	RateLimit RateLimitConfig
}

// Options wires the server to the rest of the process. Every field except
// Logger is optional; routes whose dependency is missing are not mounted.
type Options struct {
	// Systems lists the host systems whose browsers are reported.
	Systems func() []*host.System
	// Attach receives renderers connecting over /renderer. It owns the
	// channel from then on.
	Attach         func(ch channel.Channel)
	ChannelOptions []channel.Option
	Loader         *resource.Loader
	Metrics        *monitoring.Metrics
	Gatherer       prometheus.Gatherer
	Logger         *logging.Logger
}

// Server is the debug and operations HTTP surface of the host.
type Server struct {
	config  Config
	router  *gin.Engine
	http    *http.Server
	logger  *logging.Logger
	started time.Time
}

// NewServer creates a new server instance
func NewServer(cfg Config, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CORS(cfg.CORS))
	router.Use(RateLimit(cfg.RateLimit))
	if opts.Metrics != nil {
		router.Use(monitoring.Middleware(opts.Metrics))
	}

	s := &Server{
		config:  cfg,
		router:  router,
		logger:  opts.Logger,
		started: time.Now(),
	}
	h := newHandlers(opts, s.started)

	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/browsers", h.ListBrowsers)
	if opts.Gatherer != nil {
		router.GET("/metrics", h.Metrics(opts.Gatherer))
	}
	if opts.Attach != nil {
		router.GET("/renderer", h.AttachRenderer)
	}
	if opts.Loader != nil {
		router.GET("/local/*path", h.Local)
	}

	s.http = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("Starting debug server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
