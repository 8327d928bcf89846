// Package server provides the debug and operations HTTP surface of the host.
//
// Routes:
//   - GET /          service banner
//   - GET /health    renderer and browser counts plus a metrics snapshot
//   - GET /browsers  state of every live browser
//   - GET /metrics   Prometheus exposition
//   - GET /renderer  websocket attach point for remote renderers
//   - GET /local/*   files below the resource root, as local: urls see them
//
// Routes whose dependency is not supplied in Options are not mounted.
//
// Example Usage:
//
//	srv := server.NewServer(cfg, server.Options{Systems: systems, Logger: logger})
//	go srv.Run()
//	defer srv.Shutdown(ctx)
package server
