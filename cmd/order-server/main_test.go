package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/userapi"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedUsers struct{}

func (fixedUsers) GetUserInfo(_ context.Context, uid string) (string, error) {
	return "user " + uid, nil
}

func writeConfig(t *testing.T, port int, userServerAddr string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "order-server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: `+strconv.Itoa(port)+`
  shutdown_timeout: 1s
telemetry:
  log_level: error
registry:
  backend: static
  static:
    user-server:
      - `+userServerAddr+`
`), 0o600))
	return path
}

func TestRoot_NoArgsPropagatesStartupFailure(t *testing.T) {
	taken, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer taken.Close()

	root := newRootCmd()
	root.SetArgs([]string{"--config", writeConfig(t, taken.Addr().(*net.TCPAddr).Port, "localhost:1")})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	err = root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on")
}

func TestRoot_RelaysThroughDiscoveredUserServer(t *testing.T) {
	upstream := gin.New()
	upstream.UseRawPath = true
	userapi.Register(upstream, fixedUsers{})
	userSrv := httptest.NewServer(upstream)
	defer userSrv.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	root := newRootCmd()
	root.SetArgs([]string{"server", "--config", writeConfig(t, port, userSrv.Listener.Addr().String())})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/order/user/42"
	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "user 42", body)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
