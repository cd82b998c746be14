package service

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes the default prometheus registry on /metrics.
type MetricsServer struct {
	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

func (m *MetricsServer) newServer(ctx context.Context, ln net.Listener) *http.Server {
	hdlr := http.NewServeMux()
	hdlr.Handle("/metrics", promhttp.Handler())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.server = &http.Server{
		Handler:     hdlr,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	m.addr = ln.Addr()
	return m.server
}

// Addr is the bound address, nil before Serve.
func (m *MetricsServer) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	srv := m.server
	m.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
