package service

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

type HealthzServer struct {
	Ready func() bool

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// Router serves /healthz.
func (h *HealthzServer) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Handle).Methods(http.MethodGet, http.MethodHead)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(r)
}

func (h *HealthzServer) newServer(ctx context.Context, ln net.Listener) *http.Server {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.server = &http.Server{
		Handler:     h.Router(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	h.addr = ln.Addr()
	return h.server
}

// Addr is the bound address, nil before Serve.
func (h *HealthzServer) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addr
}

func (h *HealthzServer) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	srv := h.server
	h.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	log.Debug("Received health check request", "path", r.URL.Path)
	if h.Ready != nil && !h.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("STOPPED")) //nolint:errcheck
		return
	}
	w.Write([]byte("OK")) //nolint:errcheck
}
