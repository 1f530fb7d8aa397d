package main

import (
	"context"
	"os/signal"
	"syscall"
)

// signalContext derives a context canceled on SIGINT or SIGTERM, so an
// interrupted pass stops at the next suspension point with the state
// store left consistent at the last committed phase.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}

	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
