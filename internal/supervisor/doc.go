// Package supervisor launches the renderer executable and wires its stdin
// and stdout into a frame channel. Liveness beyond process exit is the host
// heartbeat's job.
package supervisor
