package userapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/clients"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/metrics"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/registry"
)

const maxBodyBytes = 1 << 20

// ClientOptions configures Client.
type ClientOptions struct {
	Timeout        time.Duration
	MaxRetries     uint64
	InitialBackoff time.Duration
	Transport      http.RoundTripper
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// Client implements UserServer by calling a user-server instance picked from
// the registry. Each instance address has its own circuit breaker; transport
// errors, 5xx responses and open breakers are retried on the next instance
// with exponential backoff.
type Client struct {
	balancer       *registry.Balancer
	breakers       *clients.BreakerSet
	http           *http.Client
	maxRetries     uint64
	initialBackoff time.Duration
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

var _ UserServer = (*Client)(nil)

// NewClient returns a Client resolving ServerName through r.
func NewClient(r registry.Resolver, opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 100 * time.Millisecond
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{
		balancer: registry.NewBalancer(r),
		breakers: clients.NewBreakerSet(ServerName),
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(opts.Transport),
		},
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
	}
}

// upstreamError marks a response the breaker should count as a failure.
type upstreamError struct {
	status int
	body   string
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.status, e.body)
}

// GetUserInfo fetches user info for uid from a discovered user-server.
func (c *Client) GetUserInfo(ctx context.Context, uid string) (string, error) {
	if uid == "" {
		return "", fmt.Errorf("empty uid: %w", ErrInvalidUID)
	}

	instances, err := c.balancer.Order(ctx, ServerName)
	if err != nil {
		c.metrics.ObserveClientCall(ServerName, "unresolved")
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.initialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, c.maxRetries), ctx)

	attempt := 0
	info, err := backoff.RetryWithData(func() (string, error) {
		inst := instances[attempt%len(instances)]
		attempt++
		return c.call(ctx, inst, uid)
	}, policy)

	switch {
	case err == nil:
		c.metrics.ObserveClientCall(ServerName, "ok")
		return info, nil
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrInvalidUID):
		c.metrics.ObserveClientCall(ServerName, "rejected")
		return "", err
	case ctx.Err() != nil:
		c.metrics.ObserveClientCall(ServerName, "cancelled")
		return "", ctx.Err()
	default:
		c.metrics.ObserveClientCall(ServerName, "failed")
		c.logger.WarnContext(ctx, "user-server call failed", "uid", uid, "attempts", attempt, "err", err)
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}

// call performs one request against inst. Contract errors (400, 404) are
// returned as permanent so they are neither retried nor counted against the
// instance's breaker.
func (c *Client) call(ctx context.Context, inst registry.Instance, uid string) (string, error) {
	cb := c.breakers.Get(inst.Addr)

	var status int
	res, err := cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, inst.BaseURL()+PathFor(uid), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/plain")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("reading body: %w", err)
		}

		status = resp.StatusCode
		if status >= http.StatusInternalServerError {
			return nil, &upstreamError{status: status, body: strings.TrimSpace(string(body))}
		}
		return string(body), nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%s: circuit open: %w", inst.Addr, err)
		}
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return "", fmt.Errorf("%s: %w", inst.Addr, err)
	}

	body := res.(string)
	switch {
	case status == http.StatusOK:
		return body, nil
	case status == http.StatusNotFound:
		return "", backoff.Permanent(fmt.Errorf("%s: %w", uid, ErrUserNotFound))
	case status == http.StatusBadRequest:
		return "", backoff.Permanent(fmt.Errorf("%q: %w", uid, ErrInvalidUID))
	default:
		return "", backoff.Permanent(&upstreamError{status: status, body: strings.TrimSpace(body)})
	}
}
