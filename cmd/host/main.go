package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/channel"
	"github.com/GriffinCanCode/webbridge/internal/config"
	"github.com/GriffinCanCode/webbridge/internal/host"
	"github.com/GriffinCanCode/webbridge/internal/logging"
	"github.com/GriffinCanCode/webbridge/internal/monitoring"
	"github.com/GriffinCanCode/webbridge/internal/protocol"
	"github.com/GriffinCanCode/webbridge/internal/resource"
	"github.com/GriffinCanCode/webbridge/internal/server"
	"github.com/GriffinCanCode/webbridge/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "YAML or TOML config file")
	url := flag.String("url", "local:index.html", "Page loaded into the demo browser")
	nav := flag.String("nav", "all", "Navigation policy: all, prevent or local")
	allow := flag.String("allow", "", "Comma separated url patterns always allowed")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.HostConfig(cfg.Logging.Level, cfg.Logging.Development))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	mode, err := host.ParseNavigationMode(*nav)
	if err != nil {
		logger.Fatal("Invalid navigation mode", zap.Error(err))
	}
	policy := host.NavigationPolicy{Mode: mode, Allow: splitList(*allow)}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, policy, *url); err != nil {
		logger.Error("Host stopped", zap.Error(err))
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// app ties renderer connections to host systems.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	policy  host.NavigationPolicy
	url     string

	mu      sync.Mutex
	systems []*host.System
	wg      sync.WaitGroup
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger, policy host.NavigationPolicy, url string) error {
	reg := prometheus.NewRegistry()
	var metrics *monitoring.Metrics
	if cfg.Metrics.Enabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = monitoring.NewMetrics(reg, cfg.Metrics.Namespace)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		policy:  policy,
		url:     url,
	}
	chOpts := a.channelOptions()

	var ch channel.Channel
	var proc *supervisor.Process
	switch {
	case cfg.Bridge.RemoteAddr != "":
		g, err := channel.DialGRPC(ctx, cfg.Bridge.RemoteAddr, chOpts...)
		if err != nil {
			return fmt.Errorf("dial renderer: %w", err)
		}
		logger.Info("Connected to remote renderer", zap.String("addr", cfg.Bridge.RemoteAddr))
		ch = g
	case cfg.Renderer.Executable != "":
		p, err := supervisor.Launch(ctx, supervisor.Options{
			Executable:     cfg.Renderer.Executable,
			Args:           cfg.Renderer.Args,
			ChannelOptions: chOpts,
			Logger:         logger.Named("renderer"),
			OnExit: func(err error) {
				if err != nil {
					logger.Warn("Renderer exited", zap.Error(err))
				}
			},
		})
		if err != nil {
			return err
		}
		proc = p
		ch = p.Channel()
	}

	if ch != nil {
		a.attach(ctx, ch)
	}

	var srv *server.Server
	if cfg.Server.Enabled {
		loader, err := resource.NewLoader(cfg.Renderer.ResourceRoot, logger)
		if err != nil {
			return err
		}
		srv = server.NewServer(server.Config{
			Host:      cfg.Server.Host,
			Port:      cfg.Server.Port,
			CORS:      server.DefaultCORSConfig(),
			RateLimit: server.DefaultRateLimitConfig(),
		}, server.Options{
			Systems:        a.list,
			Attach:         func(ch channel.Channel) { a.attach(ctx, ch) },
			ChannelOptions: chOpts,
			Loader:         loader,
			Metrics:        metrics,
			Gatherer:       reg,
			Logger:         logger,
		})
		go func() {
			if err := srv.Run(); err != nil {
				logger.Error("Debug server failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Debug server shutdown", zap.Error(err))
		}
	}
	for _, sys := range a.list() {
		sys.Shutdown()
	}
	if proc != nil {
		if err := proc.Stop(shutdownCtx); err != nil {
			logger.Warn("Renderer stop", zap.Error(err))
		}
	}
	a.wg.Wait()
	return nil
}

func (a *app) channelOptions() []channel.Option {
	return []channel.Option{
		channel.WithLogger(a.logger.Named("channel")),
		channel.WithMaxFrameBytes(a.cfg.Bridge.MaxFrameBytes),
		channel.WithFrameHook(a.metrics.FrameHook(monitoring.SideHost)),
		channel.WithDecodeErrorHook(a.metrics.DecodeErrorHook(monitoring.SideHost)),
	}
}

func (a *app) list() []*host.System {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*host.System(nil), a.systems...)
}

// attach runs a System over ch and opens the demo browser in it.
func (a *app) attach(ctx context.Context, ch channel.Channel) {
	sys := host.NewSystem(ch, host.ConfigFrom(a.cfg), a.logger, a.metrics)
	a.mu.Lock()
	a.systems = append(a.systems, sys)
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := sys.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn("Renderer connection ended", zap.Error(err))
		}
		ch.Close()
		a.remove(sys)
	}()

	if _, err := sys.CreateBrowser(a.browserOptions()); err != nil {
		a.logger.Error("Failed to create browser", zap.Error(err))
	}
}

func (a *app) remove(sys *host.System) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, s := range a.systems {
		if s == sys {
			a.systems = append(a.systems[:i], a.systems[i+1:]...)
			return
		}
	}
}

// browserOptions installs a small "host" api into every page context.
func (a *app) browserOptions() host.BrowserOptions {
	return host.BrowserOptions{
		Name:   "main",
		URL:    a.url,
		Policy: a.policy,
		Handlers: host.Handlers{
			OnContextCreated: func(b *host.Browser) {
				api := b.CreateGlobalObject("host")
				b.CreateFunction("log", api, false, func(call *host.MethodCall) {
					a.logger.Info("page", zap.String("browser", b.ID()), zap.Stringer("args", protocol.List(call.Args...)))
				})
				b.CreateFunction("now", api, true, func(call *host.MethodCall) {
					call.Reply(protocol.String(time.Now().Format(time.RFC3339)))
				})
			},
			OnOpenURL: func(b *host.Browser, url string) {
				a.logger.Info("Open url externally", zap.String("browser", b.ID()), zap.String("url", url))
			},
			OnFatal: func(b *host.Browser, err error) {
				a.logger.Error("Browser failed", zap.String("browser", b.ID()), zap.Error(err))
			},
		},
	}
}
