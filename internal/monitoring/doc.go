/*
Package monitoring provides Prometheus metrics for the bridge.

# Overview

Both processes record bridge traffic here: frames by side, direction and
tag, dropped malformed frames, method calls reaching the host, pending
callbacks and results, live contexts, and heartbeat round trips. The host's
debug server adds HTTP request metrics through Middleware.

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer, "webbridge")

	// Count frames on a channel
	ch := channel.NewStream(r, w,
		channel.WithFrameHook(metrics.FrameHook(monitoring.SideHost)),
		channel.WithDecodeErrorHook(metrics.DecodeErrorHook(monitoring.SideHost)),
	)

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

A nil *Metrics is accepted everywhere and records nothing.
*/
package monitoring
