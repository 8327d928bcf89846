// Package callbacks tracks script callbacks waiting for an asynchronous reply
// from the host. The id counter is shared by every table in the process.
package callbacks
