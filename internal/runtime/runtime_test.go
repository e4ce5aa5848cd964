package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newRuntime(addr string) *Runtime {
	return New(Options{
		Addr:            addr,
		Handler:         http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "ok") }),
		ShutdownTimeout: time.Second,
		Logger:          quiet(),
	})
}

func start(t *testing.T, r *Runtime) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	select {
	case <-r.Bound():
	case err := <-done:
		cancel()
		t.Fatalf("runtime exited before binding: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("runtime did not bind")
	}
	return cancel, done
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	t.Parallel()

	r := newRuntime("127.0.0.1:0")
	assert.Nil(t, r.Addr())
	cancel, done := start(t, r)

	resp, err := http.Get("http://" + r.Addr().String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runtime did not stop")
	}
}

func TestRun_BindFailureReturnsImmediately(t *testing.T) {
	t.Parallel()

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	r := newRuntime(taken.Addr().String())
	closed := false
	r.AddCloser("telemetry", func(context.Context) error { closed = true; return nil })

	err = r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on")
	assert.True(t, closed, "closers run after a failed start")
}

func TestRun_SecondRunRejected(t *testing.T) {
	t.Parallel()

	r := newRuntime("127.0.0.1:0")
	cancel, done := start(t, r)
	defer func() { cancel(); <-done }()

	assert.ErrorIs(t, r.Run(context.Background()), ErrAlreadyStarted)
}

func TestRun_SecondRunRejectedAfterExit(t *testing.T) {
	t.Parallel()

	r := newRuntime("127.0.0.1:0")
	cancel, done := start(t, r)
	cancel()
	require.NoError(t, <-done)

	assert.ErrorIs(t, r.Run(context.Background()), ErrAlreadyStarted)
}

func TestRun_TaskFailureStopsRuntime(t *testing.T) {
	t.Parallel()

	r := newRuntime("127.0.0.1:0")
	boom := errors.New("register failed")
	r.AddTask("heartbeat", func(context.Context) error { return boom })

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "heartbeat")
}

func TestRun_TasksSeeCancellationAndClosersRunInReverse(t *testing.T) {
	t.Parallel()

	r := newRuntime("127.0.0.1:0")

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	r.AddTask("heartbeat", func(ctx context.Context) error {
		<-ctx.Done()
		record("task")
		return ctx.Err()
	})
	r.AddCloser("first", func(context.Context) error { record("first"); return nil })
	r.AddCloser("second", func(context.Context) error { record("second"); return errors.New("ignored") })

	cancel, done := start(t, r)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"task", "second", "first"}, order)
}
