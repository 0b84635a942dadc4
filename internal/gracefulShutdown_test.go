package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShuttingDownFlag(t *testing.T) {
	// Block the shutdown tasks forever so the handler never reaches its
	// process exit while the test binary is running.
	gs := NewGracefulShutdown(func() error {
		select {}
	})

	assert.False(t, gs.ShuttingDown())

	gs.Shutdown()
	assert.Eventually(t, gs.ShuttingDown, time.Second, 5*time.Millisecond)

	// The flag must stay readable any number of times during shutdown.
	assert.True(t, gs.ShuttingDown())
	assert.True(t, gs.ShuttingDown())
}

func TestShutdownIsIdempotent(t *testing.T) {
	gs := NewGracefulShutdown(func() error {
		select {}
	})

	gs.Shutdown()
	assert.Eventually(t, gs.ShuttingDown, time.Second, 5*time.Millisecond)
	// A second call while shutting down must not block or panic.
	gs.Shutdown()
	assert.True(t, gs.ShuttingDown())
}
