package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WaitForCtrlC will block/wait until a control-c or a termination signal is received
func WaitForCtrlC() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// SignalContext returns a context that is cancelled on control-c or a termination signal.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
