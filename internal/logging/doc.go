// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Every entry carries a "process" field. The renderer subprocess uses
// RendererConfig so that log lines never interleave with the wire frames
// written to stdout.
//
// Example Usage:
//
//	logger, err := logging.New(logging.HostConfig("info", false))
//	logger.ForBrowser(id).Warn("callback not found", zap.Int64("callback_id", 7))
package logging
