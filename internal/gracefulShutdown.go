package internal

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type GracefulShutdownHandler interface {
	Shutdown()          // Triggers a graceful shutdown programmatically.
	ShuttingDown() bool // Quickly checks if a shutdown is in progress.
	Wait()              // Blocks until shutdown tasks are complete.
}

// shutdownTaskTimeout is how long shutdown tasks may take before the
// process is killed anyway. Kubernetes sends SIGKILL 30 seconds after
// SIGTERM, this stays just under that.
const shutdownTaskTimeout = 25 * time.Second

type gracefulShutdown struct {
	quit         chan os.Signal
	shuttingDown chan bool
	wg           sync.WaitGroup
}

// NewGracefulShutdown traps SIGINT/SIGTERM and runs onShutdown (if not
// nil) once a signal arrives, then exits the process.
func NewGracefulShutdown(onShutdown func() error) GracefulShutdownHandler {
	gs := &gracefulShutdown{
		quit:         make(chan os.Signal, 1),
		shuttingDown: make(chan bool, 1),
		wg:           sync.WaitGroup{},
	}
	gs.wg.Add(1)

	go func() {
		defer gs.wg.Done()
		signal.Notify(gs.quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-gs.quit
		gs.shuttingDown <- true
		zap.S().Infow("Received signal, shutting down", "signal", sig.String())
		if onShutdown != nil {
			zap.S().Infow("Waiting for shutdown tasks to complete", "timeout", shutdownTaskTimeout)
			time.AfterFunc(shutdownTaskTimeout, func() {
				zap.S().Errorw("Shutdown tasks did not complete in time", "timeout", shutdownTaskTimeout)
				_ = zap.S().Sync()
				os.Exit(1)
			})
			err := onShutdown()
			if err != nil {
				zap.S().Errorw("Error during shutdown", "error", err)
				return
			}
		}
		zap.S().Info("Shutdown tasks completed. Ready to exit.")
		_ = zap.S().Sync()
		os.Exit(0)
	}()

	return gs
}

func (gs *gracefulShutdown) ShuttingDown() bool {
	select {
	case <-gs.shuttingDown:
		// Put the value back for later checks during shutdown.
		gs.shuttingDown <- true
		return true
	default:
		return false
	}
}

func (gs *gracefulShutdown) Shutdown() {
	if !gs.ShuttingDown() {
		gs.quit <- syscall.SIGTERM
	}
}

func (gs *gracefulShutdown) Wait() {
	gs.wg.Wait()
}
