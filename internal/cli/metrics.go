package cli

import (
	"context"
	"net"
	nethttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmorrison-juniper/misthelper/internal/logging"
)

// newMetricsServer exposes gatherer on GET /metrics.
func newMetricsServer(addr string, gatherer prometheus.Gatherer) *nethttp.Server {
	mux := nethttp.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &nethttp.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// serveMetrics runs the metrics listener until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *logging.Logger) error {
	srv := newMetricsServer(addr, gatherer)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", ln.Addr().String()).Msg("metrics listener started")
		if err := srv.Serve(ln); err != nethttp.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
