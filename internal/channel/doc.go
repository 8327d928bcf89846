// Package channel moves wire frames between the host and a renderer process.
//
// Every transport implements Channel: an ordered, fire-and-forget pipe that
// decodes frames once at the boundary and drops malformed ones. Available
// transports:
//
//   - Pipe: in-memory pair, used by tests and single-process setups
//   - Stream: newline-delimited frames over byte streams (child process stdio)
//   - WebSocket: one frame per text message (gorilla/websocket)
//   - GRPC: one frame per BytesValue on a bidirectional stream
//
// Queue is the tick-drained inbox used when dispatch must happen on a
// single consumer thread instead of the reader goroutine.
package channel
