// Package service serves the health and metrics endpoints of a long-running
// harness.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/metrics"
)

// Config selects the endpoints to serve. An empty address disables its
// server.
type Config struct {
	Log         log.Logger
	HealthzAddr string
	MetricsAddr string
	// Ready reports whether the harness is still scheduling invocations.
	// Healthz answers 503 once it returns false.
	Ready func() bool
}

type Service struct {
	log     log.Logger
	cfg     Config
	Healthz *HealthzServer
	Metrics *MetricsServer

	wg sync.WaitGroup
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &Service{
		log:     cfg.Log.New("component", "service"),
		cfg:     cfg,
		Healthz: &HealthzServer{Ready: cfg.Ready},
		Metrics: &MetricsServer{},
	}
}

// Start binds every enabled server and serves them in the background. Nothing
// is left listening when a bind fails.
func (s *Service) Start(ctx context.Context) error {
	if s.cfg.HealthzAddr != "" {
		ln, err := net.Listen("tcp", s.cfg.HealthzAddr)
		if err != nil {
			return fmt.Errorf("failed to listen for healthz on %s: %w", s.cfg.HealthzAddr, err)
		}
		s.serve("healthz", ln, s.Healthz.newServer(ctx, ln))
	}
	if s.cfg.MetricsAddr != "" {
		ln, err := net.Listen("tcp", s.cfg.MetricsAddr)
		if err != nil {
			_ = s.Shutdown(ctx)
			return fmt.Errorf("failed to listen for metrics on %s: %w", s.cfg.MetricsAddr, err)
		}
		s.serve("metrics", ln, s.Metrics.newServer(ctx, ln))
	}
	return nil
}

func (s *Service) serve(name string, ln net.Listener, srv *http.Server) {
	s.log.Info("Starting server", "server", name, "addr", ln.Addr().String())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Server failed", "server", name, "err", err)
			metrics.RecordErrorDetails(name+"_server", err)
		}
	}()
}

// Shutdown stops both servers and waits for them to return.
func (s *Service) Shutdown(ctx context.Context) error {
	err := errors.Join(s.Healthz.Shutdown(ctx), s.Metrics.Shutdown(ctx))
	s.wg.Wait()
	s.log.Info("Service stopped")
	return err
}
