package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/webbridge/internal/channel"
	"github.com/GriffinCanCode/webbridge/internal/config"
	"github.com/GriffinCanCode/webbridge/internal/logging"
	"github.com/GriffinCanCode/webbridge/internal/monitoring"
	"github.com/GriffinCanCode/webbridge/internal/renderer"
	"github.com/GriffinCanCode/webbridge/internal/resource"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	configPath := flag.String("config", "", "YAML or TOML config file")
	wsURL := flag.String("ws", "", "Dial the host's /renderer websocket instead of using stdin/stdout")
	grpcListen := flag.String("grpc-listen", "", "Serve the gRPC bridge on this address instead of using stdin/stdout")
	metricsAddr := flag.String("metrics", "", "Expose Prometheus metrics on this address")
	resources := flag.String("resources", "", "Resource root for local: urls (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *resources != "" {
		cfg.Renderer.ResourceRoot = *resources
	}

	// Stdout may carry frames; logs always go to stderr.
	logger, err := logging.New(logging.RendererConfig(cfg.Logging.Level, cfg.Logging.Development))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *wsURL, *grpcListen, *metricsAddr); err != nil {
		logger.Error("Renderer stopped", zap.Error(err))
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

type process struct {
	cfg     *config.Config
	loader  *resource.Loader
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger, wsURL, grpcListen, metricsAddr string) error {
	p := &process{cfg: cfg, logger: logger}

	loader, err := resource.NewLoader(cfg.Renderer.ResourceRoot, logger.Named("resource"))
	if err != nil {
		return err
	}
	p.loader = loader

	if metricsAddr != "" && cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		p.metrics = monitoring.NewMetrics(reg, cfg.Metrics.Namespace)
		go serveMetrics(ctx, metricsAddr, reg, logger)
	}

	switch {
	case grpcListen != "":
		return p.serveGRPC(ctx, grpcListen)
	case wsURL != "":
		ws, err := channel.DialWebSocket(ctx, wsURL, p.channelOptions()...)
		if err != nil {
			return fmt.Errorf("dial host: %w", err)
		}
		return p.runApp(ctx, ws)
	default:
		return p.runApp(ctx, channel.NewStream(os.Stdin, os.Stdout, p.channelOptions()...))
	}
}

func (p *process) channelOptions() []channel.Option {
	return []channel.Option{
		channel.WithLogger(p.logger.Named("channel")),
		channel.WithMaxFrameBytes(p.cfg.Bridge.MaxFrameBytes),
		channel.WithFrameHook(p.metrics.FrameHook(monitoring.SideRenderer)),
		channel.WithDecodeErrorHook(p.metrics.DecodeErrorHook(monitoring.SideRenderer)),
	}
}

func (p *process) runApp(ctx context.Context, ch channel.Channel) error {
	defer ch.Close()
	app := renderer.NewApp(ch, renderer.ConfigFrom(p.cfg), p.loader, p.logger, p.metrics)
	p.logger.Info("Renderer running", zap.String("resources", p.loader.Root()))
	err := app.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Accept runs one App per host connection.
func (p *process) Accept(ch channel.Channel) {
	go func() {
		if err := p.runApp(context.Background(), ch); err != nil {
			p.logger.Warn("Host connection ended", zap.Error(err))
		}
	}()
}

func (p *process) serveGRPC(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s := grpc.NewServer(channel.ServerOptions(p.cfg.Bridge.MaxFrameBytes)...)
	channel.RegisterBridgeServer(s, p, p.channelOptions()...)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	p.logger.Info("Serving gRPC bridge", zap.String("addr", lis.Addr().String()))
	return s.Serve(lis)
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *logging.Logger) {
	srv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("Metrics server failed", zap.Error(err))
	}
}
