// Package main is the demo host application.
//
// It connects to a renderer, opens one browser on -url and installs a small
// "host" object into every page context:
//
//	host.log(...args)     logs the arguments on the host
//	host.now(callback)    answers with the host time
//
// The renderer is reached in one of three ways:
//   - BRIDGE_REMOTE_ADDR set: dial a renderer serving gRPC
//   - RENDERER_EXE set (the default): launch it and speak over stdin/stdout
//   - renderers dialing the debug server's /renderer websocket
//
// Usage:
//
//	./host -url local:ui/index.html -nav local -allow 'https://docs.example.com/**'
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
