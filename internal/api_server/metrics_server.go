package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cropdesk/cropdesk/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type MetricServer struct {
	bindAddress string
	httpServer  *http.Server
	listener    net.Listener
}

// NewMetricServer serves the default registry. The extra collectors are
// registered once; a collector that is already registered is kept.
func NewMetricServer(bindAddress string, listener net.Listener, collectors ...prometheus.Collector) *MetricServer {
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				zap.S().Named("metrics_server").Warnw("failed to register collector", "error", err)
			}
		}
	}

	router := chi.NewRouter()

	prometheusMetricHandler := metrics.NewPrometheusMetricsHandler()
	router.Handle("/metrics", prometheusMetricHandler.Handler())

	s := &MetricServer{
		bindAddress: bindAddress,
		listener:    listener,
		httpServer: &http.Server{
			Addr:              bindAddress,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	return s
}

func (m *MetricServer) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		m.httpServer.SetKeepAlivesEnabled(false)
		_ = m.httpServer.Shutdown(ctxTimeout)
		zap.S().Named("metrics_server").Info("metrics server terminated")
	}()

	ticker := time.NewTicker(7 * 24 * time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.UniqueUsersPerWeek.Reset()
				zap.S().Named("metrics_server").Info("weekly unique users metric reset")
			case <-ctx.Done():
				return
			}
		}
	}()

	zap.S().Named("metrics_server").Infof("serving metrics: %s", m.bindAddress)
	if err := m.httpServer.Serve(m.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
