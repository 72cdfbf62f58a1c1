// Package host owns the root container of an application: it builds the
// logger and metrics from configuration, installs every registration source,
// builds the container once and disposes it at shutdown.
package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ARTM2000/grove"
	"github.com/ARTM2000/grove/config"
	"github.com/ARTM2000/grove/internal/logging"
)

// Host is a built root container together with its logger and metrics.
type Host struct {
	cfg       config.Config
	log       *zap.Logger
	registry  *prometheus.Registry
	metrics   *grove.Metrics
	container *grove.Container
}

// Option customizes [New].
type Option func(*Host)

// WithLogger uses l instead of a logger built from the configuration.
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) { h.log = l }
}

// New creates the root container and installs sources into it. When
// cfg.ParallelSources is set the sources run concurrently; otherwise in
// order. The container is built once all of them succeed.
func New(cfg config.Config, sources []grove.Source, opts ...Option) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Host{cfg: cfg}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		l, err := logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return nil, err
		}
		h.log = l
	}

	containerOpts := []grove.Option{
		grove.WithLogger(h.log),
		grove.WithMaxDepth(cfg.MaxDepth),
	}
	if cfg.MetricsNamespace != "" {
		h.registry = prometheus.NewRegistry()
		m, err := grove.NewMetrics(cfg.MetricsNamespace, h.registry)
		if err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
		h.metrics = m
		containerOpts = append(containerOpts, grove.WithMetrics(m))
	}

	h.container = grove.New(containerOpts...)
	h.container.RegisterInstance(h.log).AsSelf()

	if err := h.install(sources); err != nil {
		return nil, errors.Join(err, h.container.Dispose())
	}
	if err := h.container.Build(); err != nil {
		return nil, errors.Join(fmt.Errorf("building container: %w", err), h.container.Dispose())
	}

	h.log.Info("Host started",
		zap.String("container", h.container.ID()),
		zap.Int("sources", len(sources)),
		zap.Bool("parallel_sources", cfg.ParallelSources),
	)
	return h, nil
}

func (h *Host) install(sources []grove.Source) error {
	if !h.cfg.ParallelSources {
		return h.container.Install(sources...)
	}

	var g errgroup.Group
	for _, s := range sources {
		g.Go(func() error { return h.container.Install(s) })
	}
	return g.Wait()
}

// Container returns the root container.
func (h *Host) Container() *grove.Container { return h.container }

// Logger returns the host logger.
func (h *Host) Logger() *zap.Logger { return h.log }

// Metrics returns the container metrics, or nil when disabled.
func (h *Host) Metrics() *grove.Metrics { return h.metrics }

// Registry returns the Prometheus registry the metrics are registered with,
// or nil when metrics are disabled.
func (h *Host) Registry() *prometheus.Registry { return h.registry }

// Shutdown disposes the root container and everything it owns. It gives up
// after the configured shutdown timeout or when ctx is done, whichever comes
// first, and returns the context error in that case.
func (h *Host) Shutdown(ctx context.Context) error {
	if h.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.ShutdownTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- h.container.Dispose() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("disposing root container: %w", ctx.Err())
	}

	if err != nil {
		h.log.Error("Host shutdown failed", zap.Error(err))
	} else {
		h.log.Info("Host stopped")
	}
	_ = h.log.Sync()
	return err
}
