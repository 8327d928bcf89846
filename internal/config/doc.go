// Package config provides 12-factor configuration for the host and renderer.
//
// Configuration is loaded from environment variables with sensible defaults.
// An optional YAML or TOML file can be layered underneath the environment.
//
// Configuration Sections:
//   - Server: debug HTTP server (health, metrics, remote renderer attach)
//   - Bridge: dispatch mode, tick and heartbeat timing, frame size limit
//   - Renderer: subprocess executable and resource root
//   - Logging: Log level and output format
//   - Metrics: prometheus namespace
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("heartbeat every %s\n", cfg.Bridge.PingInterval)
//
// Environment Variables:
//   - PORT, HOST, SERVER_ENABLED
//   - BRIDGE_QUEUED_DISPATCH, BRIDGE_TICK, BRIDGE_PING_INTERVAL, BRIDGE_LAUNCH_TIMEOUT,
//     BRIDGE_MAX_FRAME, BRIDGE_REMOTE_ADDR
//   - RENDERER_EXE, RENDERER_ARGS, RENDERER_RESOURCES, RENDERER_CONSOLE_RATE, RENDERER_CONSOLE_BURST
//   - LOG_LEVEL, LOG_DEV
//   - METRICS_ENABLED, METRICS_NAMESPACE
package config
