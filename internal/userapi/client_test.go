package userapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/metrics"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/registry"
)

// newUserServer starts an httptest server serving the contract backed by s.
func newUserServer(t *testing.T, s UserServer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newEngine(s))
	t.Cleanup(srv.Close)
	return srv
}

// newFailingServer answers every request with status.
func newFailingServer(t *testing.T, status int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "broken", status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func staticResolver(addrs ...string) registry.Resolver {
	return registry.NewStaticRegistry(map[string][]string{ServerName: addrs})
}

func fastOptions() ClientOptions {
	return ClientOptions{
		Timeout:        time.Second,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
	}
}

func TestClient_GetUserInfo(t *testing.T) {
	t.Parallel()

	backend := &recordingServer{users: map[string]string{"42": "Ada Lovelace <ada@example.com>"}}
	srv := newUserServer(t, backend)

	client := NewClient(staticResolver(srv.URL), fastOptions())
	info, err := client.GetUserInfo(context.Background(), "42")

	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace <ada@example.com>", info)
	assert.Equal(t, []string{"42"}, backend.calls())
}

func TestClient_PreservesUIDAcrossTheWire(t *testing.T) {
	t.Parallel()

	backend := &recordingServer{}
	srv := newUserServer(t, backend)
	client := NewClient(staticResolver(srv.URL), fastOptions())

	for _, uid := range []string{"a/b", "a b", "%41", "ünïcödé"} {
		info, err := client.GetUserInfo(context.Background(), uid)
		require.NoError(t, err, uid)
		assert.Equal(t, "user "+uid, info)
	}
	assert.Equal(t, []string{"a/b", "a b", "%41", "ünïcödé"}, backend.calls())
}

func TestClient_NotFoundIsNotRetried(t *testing.T) {
	t.Parallel()

	backend := &recordingServer{err: ErrUserNotFound}
	srv := newUserServer(t, backend)
	client := NewClient(staticResolver(srv.URL), fastOptions())

	_, err := client.GetUserInfo(context.Background(), "missing")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Len(t, backend.calls(), 1)
}

func TestClient_BadRequestMapsToInvalidUID(t *testing.T) {
	t.Parallel()

	srv := newUserServer(t, &recordingServer{err: ErrInvalidUID})
	client := NewClient(staticResolver(srv.URL), fastOptions())

	_, err := client.GetUserInfo(context.Background(), "x")
	assert.ErrorIs(t, err, ErrInvalidUID)
}

func TestClient_EmptyUIDRejectedLocally(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newFailingServer(t, http.StatusOK, &hits)
	client := NewClient(staticResolver(srv.URL), fastOptions())

	_, err := client.GetUserInfo(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidUID)
	assert.Zero(t, hits.Load())
}

func TestClient_FailsOverToHealthyInstance(t *testing.T) {
	t.Parallel()

	var badHits atomic.Int32
	bad := newFailingServer(t, http.StatusInternalServerError, &badHits)
	good := newUserServer(t, &recordingServer{})

	client := NewClient(staticResolver(bad.URL, good.URL), fastOptions())

	for range 4 {
		info, err := client.GetUserInfo(context.Background(), "42")
		require.NoError(t, err)
		assert.Equal(t, "user 42", info)
	}
	assert.Positive(t, badHits.Load())
}

func TestClient_AllInstancesFailing(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newFailingServer(t, http.StatusServiceUnavailable, &hits)
	m := metrics.New("orders")

	opts := fastOptions()
	opts.MaxRetries = 2
	opts.Metrics = m
	client := NewClient(staticResolver(srv.URL), opts)

	_, err := client.GetUserInfo(context.Background(), "42")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(3), hits.Load(), "one attempt plus two retries")
}

func TestClient_CircuitOpensOnRepeatedFailure(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newFailingServer(t, http.StatusInternalServerError, &hits)

	opts := fastOptions()
	opts.MaxRetries = 5
	client := NewClient(staticResolver(srv.URL), opts)

	_, err := client.GetUserInfo(context.Background(), "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, int32(3), hits.Load(), "breaker trips after three consecutive failures")
	assert.True(t, client.breakers.IsOpen(srv.URL))
}

func TestClient_NoInstances(t *testing.T) {
	t.Parallel()

	client := NewClient(registry.NewStaticRegistry(nil), fastOptions())

	_, err := client.GetUserInfo(context.Background(), "42")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, registry.ErrNoInstances)
}

func TestClient_ContextCancelled(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	client := NewClient(staticResolver(srv.URL), fastOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.GetUserInfo(ctx, "42")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}
