// Package main is the renderer process.
//
// By default it is launched by the host and speaks newline-delimited frames
// on stdin and stdout. It can also dial the host's /renderer websocket (-ws)
// or serve the gRPC bridge for a remote host (-grpc-listen). Logs go to
// stderr in every mode.
//
// Usage:
//
//	./renderer -resources ./ui
//	./renderer -ws ws://127.0.0.1:8000/renderer
//	./renderer -grpc-listen :7070 -metrics :9100
package main
