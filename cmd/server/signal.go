package main

import (
	"context"
	"os/signal"
	"syscall"
)

// signalContext returns a context canceled on SIGINT/SIGTERM, giving
// runServe a single done-channel to select on for graceful shutdown.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
