package groutine

import (
	"context"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoNamesGoroutine(t *testing.T) {
	type seen struct {
		name  string
		label string
	}
	got := make(chan seen, 1)

	Go(nil, "disconnect-monitor-D1", func(ctx context.Context) { //nolint:staticcheck // nil parent is supported
		label, _ := pprof.Label(ctx, LabelKey)
		got <- seen{name: Name(ctx), label: label}
	})

	select {
	case s := <-got:
		assert.Equal(t, "disconnect-monitor-D1", s.name)
		assert.Equal(t, "disconnect-monitor-D1", s.label, "name MUST be exposed as a pprof label")
	case <-time.After(time.Second):
		require.FailNow(t, "goroutine MUST run")
	}
}

func TestGoKeepsParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	Go(parent, "waiter", func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	})
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "cancelling the parent MUST stop the goroutine")
	}
}

func TestNameOutsideGoroutine(t *testing.T) {
	assert.Empty(t, Name(context.Background()))
	assert.Empty(t, Name(nil)) //nolint:staticcheck // nil context is tolerated
}
