package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"graphsync/internal/adapters/httpapi"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the object API over HTTP",
		Long: `Serve exposes the configured backend over HTTP:

  GET  /object/{id}   stored data of one object
  POST /object        save a flat record
  GET  /prototypes    registered prototype names
  GET  /metrics       Prometheus metrics (when enabled)
  GET  /healthz       liveness`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts, nil)
		},
	}
}

// serve runs until ctx is cancelled. ready, when non-nil, receives the bound
// listener address once accepting.
func serve(ctx context.Context, opts *rootOptions, ready chan<- string) error {
	cfg := opts.cfg
	a, err := openApp(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	routerOpts := httpapi.Options{Logger: a.logger, CORSOrigins: cfg.Server.CORSOrigins}
	if a.registry != nil {
		routerOpts.Metrics = promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
	}
	srv := &http.Server{
		Handler:           httpapi.NewRouter(a.sync, routerOpts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return err
	}
	a.logger.Info("listening", "addr", ln.Addr().String(), "driver", cfg.Storage.Driver, "namespace", cfg.Storage.Namespace)
	if ready != nil {
		ready <- ln.Addr().String()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	a.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
