package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunReverseOrder(t *testing.T) {
	var order []string
	Register("store", func(context.Context) error {
		order = append(order, "store")
		return nil
	})
	Register("ingest", func(context.Context) error {
		order = append(order, "ingest")
		return nil
	})

	Run(time.Second)
	if len(order) != 2 || order[0] != "ingest" || order[1] != "store" {
		t.Fatalf("wrong order: %v", order)
	}
}

func TestRunContinuesPastFailingHook(t *testing.T) {
	var ran bool
	Register("first", func(context.Context) error {
		ran = true
		return nil
	})
	Register("failing", func(context.Context) error {
		return errors.New("boom")
	})

	Run(time.Second)
	if !ran {
		t.Fatal("hook after failure did not run")
	}
}

func TestRunConsumesHooks(t *testing.T) {
	count := 0
	Register("once", func(context.Context) error {
		count++
		return nil
	})
	Run(time.Second)
	Run(time.Second)
	if count != 1 {
		t.Fatalf("hook ran %d times", count)
	}
}

func TestHookTimeout(t *testing.T) {
	var deadlineSet bool
	Register("slow", func(ctx context.Context) error {
		_, deadlineSet = ctx.Deadline()
		return nil
	})
	Run(50 * time.Millisecond)
	if !deadlineSet {
		t.Fatal("hook context had no deadline")
	}
}

func TestSignalContextNilParent(t *testing.T) {
	ctx, cancel := SignalContext(nil)
	defer cancel()
	select {
	case <-ctx.Done():
		t.Fatal("context done before any signal")
	default:
	}
}
