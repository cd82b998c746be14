package service

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthz(t *testing.T) {
	h := &HealthzServer{}
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "*", resp2.Header.Get("Access-Control-Allow-Origin"))

	resp3, err := http.Post(srv.URL+"/healthz", "text/plain", nil)
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp3.StatusCode)

	resp4, err := http.Get(srv.URL + "/missing")
	require.NoError(t, err)
	defer resp4.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp4.StatusCode)
}

func TestHealthz_NotReady(t *testing.T) {
	var ready atomic.Bool
	h := &HealthzServer{Ready: ready.Load}
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "STOPPED", string(body))

	ready.Store(true)
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestService_ServesConfiguredAddrs(t *testing.T) {
	s := New(Config{
		HealthzAddr: "127.0.0.1:0",
		MetricsAddr: "127.0.0.1:0",
		Ready:       func() bool { return true },
	})
	require.NoError(t, s.Start(context.Background()))

	resp, err := http.Get("http://" + s.Healthz.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + s.Metrics.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	addr := s.Healthz.Addr().String()
	require.NoError(t, s.Shutdown(context.Background()))
	_, err = net.Dial("tcp", addr)
	assert.Error(t, err)
}

func TestService_DisabledAddrs(t *testing.T) {
	s := New(Config{})
	require.NoError(t, s.Start(context.Background()))
	assert.Nil(t, s.Healthz.Addr())
	assert.Nil(t, s.Metrics.Addr())
	assert.NoError(t, s.Shutdown(context.Background()))
}

func TestService_BindError(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	s := New(Config{
		HealthzAddr: "127.0.0.1:0",
		MetricsAddr: taken.Addr().String(),
	})
	err = s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen for metrics")

	// healthz was bound first and must be released again
	_, err = net.Dial("tcp", s.Healthz.Addr().String())
	assert.Error(t, err)
}

func TestShutdownBeforeStart(t *testing.T) {
	s := New(Config{})
	assert.NoError(t, s.Healthz.Shutdown(context.Background()))
	assert.NoError(t, s.Metrics.Shutdown(context.Background()))
	assert.NoError(t, s.Shutdown(context.Background()))
}
