package workflow

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imtaco/room-relay/internal/log"
)

type GracefulShutdownAction func(ctx context.Context)

// WaitGracefulShutdown blocks until SIGINT, SIGTERM or ctx is done, then runs
// action with a timeout. A second signal stops waiting for action.
func WaitGracefulShutdown(
	ctx context.Context,
	logger *log.Logger,
	action GracefulShutdownAction,
	timeout time.Duration,
) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	logger.Info("Graceful shutdown handler registered")
	runShutdown(ctx, sigCh, logger, action, timeout)
}

func runShutdown(
	ctx context.Context,
	sigCh <-chan os.Signal,
	logger *log.Logger,
	action GracefulShutdownAction,
	timeout time.Duration,
) {
	select {
	case sig := <-sigCh:
		logger.Info("Received signal", log.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context done, shutting down")
	}

	ctxClean, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic during graceful shutdown",
					log.Any("error", r))
			}
		}()
		logger.Info("Starting graceful shutdown", log.Duration("timeout", timeout))
		action(ctxClean)
	}()

	select {
	case <-ctxClean.Done():
		logger.Warn("Shutdown timeout exceeded, forcing exit")
	case sig := <-sigCh:
		logger.Warn("Second signal, forcing exit", log.String("signal", sig.String()))
	case <-done:
		logger.Info("Graceful shutdown completed")
	}
}
