// Package shutdown coordinates orderly teardown: hooks registered during
// startup run in reverse order when the signal context is canceled.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"notifeed/pkg/logger"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

var (
	mu    sync.Mutex
	hooks []hook
)

// Register adds a named shutdown hook. Hooks run last-registered first,
// so dependencies registered early (the store) close after their users.
func Register(name string, fn func(context.Context) error) {
	mu.Lock()
	defer mu.Unlock()
	hooks = append(hooks, hook{name: name, fn: fn})
}

// SignalContext returns a context canceled on SIGINT/SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Run executes all registered hooks in reverse order with the given
// per-hook timeout. Errors are logged, not propagated: teardown always
// continues.
func Run(timeout time.Duration) {
	mu.Lock()
	hs := make([]hook, len(hooks))
	copy(hs, hooks)
	hooks = nil
	mu.Unlock()

	for i := len(hs) - 1; i >= 0; i-- {
		h := hs[i]
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := h.fn(ctx); err != nil {
			logger.Error("shutdown_hook_failed", "hook", h.name, "error", err)
		} else {
			logger.Info("shutdown_hook_done", "hook", h.name)
		}
		cancel()
	}
}
