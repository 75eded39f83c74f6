package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// NotifySignals relays SIGINT and SIGTERM until stop is called.
func NotifySignals() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch, func() { signal.Stop(ch) }
}

// Controls is the part of the harness an interrupt acts on.
type Controls interface {
	Cancel()
	Kill()
}

// Outcome reports how WaitRun returned.
type Outcome int

const (
	// Finished means the run reached a terminal state.
	Finished Outcome = iota
	// Forced means a second signal arrived before the run finished.
	Forced
	// Aborted means ctx ended first.
	Aborted
)

// WaitRun blocks until finished is closed. The first signal requests a
// graceful cancel and calls onCancel; a second one kills the process and
// returns Forced.
func WaitRun(ctx context.Context, h Controls, finished <-chan struct{}, sigs <-chan os.Signal, onCancel func(os.Signal)) Outcome {
	interrupted := false
	for {
		select {
		case <-finished:
			return Finished
		case <-ctx.Done():
			return Aborted
		case sig := <-sigs:
			if interrupted {
				h.Kill()
				return Forced
			}
			interrupted = true
			if onCancel != nil {
				onCancel(sig)
			}
			h.Cancel()
		}
	}
}
