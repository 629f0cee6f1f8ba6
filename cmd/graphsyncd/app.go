package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"

	"graphsync/internal/config"
	"graphsync/internal/core"
	"graphsync/pkg/domain"
	"graphsync/plugins/people"
)

// app bundles a configured synchronizer and what must be released with it.
type app struct {
	sync     *core.Synchronizer
	logger   hclog.Logger
	registry *prometheus.Registry
	closers  []io.Closer
}

func openApp(ctx context.Context, cfg config.Config, stderr io.Writer) (*app, error) {
	logger, logCloser := newLogger(cfg.Log, stderr)
	a := &app{logger: logger, closers: []io.Closer{logCloser}}

	backend, err := core.OpenBackend(ctx, cfg.StorageOptions(), logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open %s backend: %w", cfg.Storage.Driver, err)
	}
	if c, ok := backend.(domain.Closer); ok {
		a.closers = append(a.closers, c)
	}

	opts := []core.Option{core.WithLogger(logger), core.WithPlugins(people.New())}
	if cfg.Metrics.Prometheus {
		a.registry = prometheus.NewRegistry()
		rec, err := core.NewPrometheusMetricsRecorder(a.registry)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		opts = append(opts, core.WithMetrics(rec))
	}
	if cfg.Metrics.TraceFile != "" {
		f, err := os.OpenFile(cfg.Metrics.TraceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		a.closers = append(a.closers, f)
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	}

	s, err := core.New(backend, opts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := s.Configure(ctx, cfg.Storage.Namespace); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("configure namespace %s: %w", cfg.Storage.Namespace, err)
	}
	a.sync = s
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
