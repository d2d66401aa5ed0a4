package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultListenAddr is used when no metrics address is configured.
const DefaultListenAddr = ":2112"

// StartServer exposes the registry on addr under /metrics and returns
// the running server. The listener is bound synchronously so address
// errors surface here, then the server serves in the background.
func StartServer(addr string, registry *prometheus.Registry) (*http.Server, error) {
	if addr == "" {
		addr = DefaultListenAddr
	}
	if registry == nil {
		return nil, fmt.Errorf("prometheus registry is nil")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics endpoint %q: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    ln.Addr().String(),
		Handler: mux,
	}
	go func() {
		_ = srv.Serve(ln)
	}()
	return srv, nil
}

// StopServer gracefully shuts the metrics server down. A nil server is
// a no-op, so callers can stop unconditionally.
func StopServer(ctx context.Context, srv *http.Server) error {
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx) //nolint:wrapcheck // Shutdown errors pass through unchanged.
}
