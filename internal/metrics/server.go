// Package metrics exposes the harvester's Prometheus counters over HTTP for
// the duration of a crawl campaign.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server scrapes as a sidecar to the campaign: it starts before the first
// region and shuts down after results are persisted.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer wires the metrics routes onto addr.
func NewServer(addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves in the background until Shutdown is called.
func (s *Server) Start() {
	s.logger.Info("metrics listener started", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("metrics listener failed", zap.Error(err))
		}
	}()
}

// Shutdown drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// LogCounters writes the final counter values from the default registry to
// the log, so a campaign leaves a metrics record even when nothing scraped
// the listener.
func LogCounters(logger *zap.Logger) {
	if logger == nil {
		return
	}
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		logger.Warn("gather metrics", zap.Error(err))
		return
	}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })

	fields := make([]zap.Field, 0, len(families))
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "harvester_") {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				total += c.GetValue()
			}
		}
		fields = append(fields, zap.Float64(mf.GetName(), total))
	}
	logger.Info("campaign metrics", fields...)
}
