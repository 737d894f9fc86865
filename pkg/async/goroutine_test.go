package async

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindfulmate/mindful/pkg/observability"
)

// syncBuffer guards a bytes.Buffer written by background goroutines
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (*observability.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return observability.NewLogger(observability.DebugLevel, buf), buf
}

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not finish")
	}
}

func TestSafeGo_Success(t *testing.T) {
	logger, buf := newTestLogger()
	var executed atomic.Bool

	wait(t, SafeGo(context.Background(), logger, time.Second, "test task", func(ctx context.Context) error {
		executed.Store(true)
		return nil
	}))

	assert.True(t, executed.Load())
	assert.Empty(t, buf.String())
}

func TestSafeGo_WithError(t *testing.T) {
	logger, buf := newTestLogger()

	wait(t, SafeGo(context.Background(), logger, time.Second, "test task", func(ctx context.Context) error {
		return errors.New("lookup failed")
	}))

	assert.Contains(t, buf.String(), "background task failed")
	assert.Contains(t, buf.String(), "lookup failed")
}

func TestSafeGo_Timeout(t *testing.T) {
	logger, buf := newTestLogger()
	var completed atomic.Bool

	wait(t, SafeGo(context.Background(), logger, 20*time.Millisecond, "test task", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			completed.Store(true)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))

	assert.False(t, completed.Load())
	assert.Contains(t, buf.String(), "deadline exceeded")
}

func TestSafeGo_PanicRecovery(t *testing.T) {
	logger, buf := newTestLogger()

	wait(t, SafeGo(context.Background(), logger, time.Second, "panicky task", func(ctx context.Context) error {
		panic("boom")
	}))

	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "panicky task")
}

func TestEvery(t *testing.T) {
	logger, buf := newTestLogger()
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	done := Every(ctx, logger, 5*time.Millisecond, "tick", func(context.Context) {
		if calls.Add(1) == 1 {
			panic("first tick")
		}
	})

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	wait(t, done)

	assert.Contains(t, buf.String(), "first tick")
}
