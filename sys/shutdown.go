package sys

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// CreateShutdownChannel returns a channel that receives SIGINT and SIGTERM.
func CreateShutdownChannel() chan os.Signal {
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	return done
}

// ShutdownContext returns a context cancelled on SIGINT or SIGTERM. A second
// signal is left to the default handler, which kills the process.
func ShutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
