// Package runtime owns the process-wide state of a running service: the
// HTTP listener and server, background tasks such as the registry
// heartbeat, and the resources torn down on exit.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrAlreadyStarted is returned by a second call to Run.
var ErrAlreadyStarted = errors.New("runtime already started")

// Task runs until ctx is cancelled. A non-nil return other than a context
// error stops the runtime.
type Task func(ctx context.Context) error

// Closer releases a resource during shutdown.
type Closer func(ctx context.Context) error

// Options configures a Runtime.
type Options struct {
	Addr            string
	Handler         http.Handler
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

type namedTask struct {
	name string
	run  Task
}

type namedCloser struct {
	name  string
	close Closer
}

// Runtime serves HTTP and runs background tasks until its context ends.
// It runs at most once.
type Runtime struct {
	opts   Options
	logger *slog.Logger
	listen func(network, addr string) (net.Listener, error)

	mu      sync.Mutex
	tasks   []namedTask
	closers []namedCloser

	started atomic.Bool
	bound   chan struct{}
	addr    net.Addr
}

// New builds a Runtime. Nothing is bound until Run.
func New(opts Options) *Runtime {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		opts:   opts,
		logger: logger,
		listen: net.Listen,
		bound:  make(chan struct{}),
	}
}

// AddTask registers a background task started alongside the server.
func (r *Runtime) AddTask(name string, t Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, namedTask{name: name, run: t})
}

// AddCloser registers a resource to release on exit. Closers run in reverse
// registration order.
func (r *Runtime) AddCloser(name string, c Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers = append(r.closers, namedCloser{name: name, close: c})
}

// Bound is closed once the listener is bound.
func (r *Runtime) Bound() <-chan struct{} {
	return r.bound
}

// Addr returns the bound address, or nil before Bound is closed.
func (r *Runtime) Addr() net.Addr {
	select {
	case <-r.bound:
		return r.addr
	default:
		return nil
	}
}

// Run binds the listener, serves and runs tasks until ctx is cancelled or
// any of them fails, then shuts the server down and runs the closers. A bind
// failure is returned immediately.
func (r *Runtime) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	r.mu.Lock()
	tasks := append([]namedTask(nil), r.tasks...)
	r.mu.Unlock()

	defer r.runClosers()

	ln, err := r.listen("tcp", r.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", r.opts.Addr, err)
	}
	r.addr = ln.Addr()
	close(r.bound)

	srv := &http.Server{
		Handler:      r.opts.Handler,
		ReadTimeout:  r.opts.ReadTimeout,
		WriteTimeout: r.opts.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r.logger.Info("server listening", "addr", r.addr.String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	for _, t := range tasks {
		g.Go(func() error {
			if err := t.run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", t.name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		r.logger.Info("shutting down", "timeout", r.opts.ShutdownTimeout.String())
		shutCtx, cancel := context.WithTimeout(context.Background(), r.opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	r.logger.Info("server stopped cleanly")
	return nil
}

func (r *Runtime) runClosers() {
	r.mu.Lock()
	closers := append([]namedCloser(nil), r.closers...)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.ShutdownTimeout)
	defer cancel()

	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if err := c.close(ctx); err != nil {
			r.logger.Warn("close failed", "resource", c.name, "err", err)
		}
	}
}
