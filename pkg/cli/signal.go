// Package cli holds process-level helpers shared by the commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// SignalContext derives a context from parent that is cancelled on SIGINT
// or SIGTERM. The first signal cancels it so the scan can finish in-flight
// probes and print its summary. A second signal within gracePeriod exits
// the process with code 130. The notice goes to w (normally stderr).
//
//	ctx, cancel := cli.SignalContext(context.Background(), 30*time.Second, os.Stderr)
//	defer cancel()
func SignalContext(parent context.Context, gracePeriod time.Duration, w io.Writer) (context.Context, context.CancelFunc) {
	return signalContextWithNotifier(parent, gracePeriod, w, nil, nil)
}

// signalContextWithNotifier lets tests inject the signal channel and the
// exit function.
func signalContextWithNotifier(
	parent context.Context,
	gracePeriod time.Duration,
	w io.Writer,
	sigChan chan os.Signal,
	exitFn func(int),
) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	ownChannel := sigChan == nil
	if ownChannel {
		sigChan = make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	}
	if exitFn == nil {
		exitFn = os.Exit
	}
	if w == nil {
		w = io.Discard
	}

	go func() {
		defer func() {
			if ownChannel {
				signal.Stop(sigChan)
			}
		}()

		select {
		case sig := <-sigChan:
			fmt.Fprintf(w, "\n%s received, finishing in-flight work (press again to quit)...\n", sig)
			cancel(fmt.Errorf("signal: %s", sig))

			select {
			case <-sigChan:
				exitFn(130)
			case <-time.After(gracePeriod):
			}
		case <-ctx.Done():
		}
	}()

	return ctx, func() { cancel(context.Canceled) }
}
