package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mnehpets/typedrpc/config"
	"github.com/mnehpets/typedrpc/endpoint"
	"github.com/mnehpets/typedrpc/metrics"
	"github.com/mnehpets/typedrpc/middleware"
	"github.com/mnehpets/typedrpc/rpc"
	"github.com/mnehpets/typedrpc/wsrpc"
)

const metricsNamespace = "typedrpc"

func newServeCmd(a *app) *cobra.Command {
	var addr string
	var insecure bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve RPC over HTTP and websockets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Addr = addr
				if err := a.cfg.Validate(); err != nil {
					return err
				}
			}
			reg, err := a.registry()
			if err != nil {
				return err
			}
			h, err := newHandler(a.cfg, a.logger, reg, prometheus.NewRegistry(), !insecure)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), a.cfg, a.logger, h)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides TYPEDRPC_ADDR)")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "omit Strict-Transport-Security, for plain HTTP development")
	return cmd
}

// newHandler builds the server mux. Metrics for the dispatcher, the Go
// runtime and the process are registered with promReg.
func newHandler(cfg *config.Config, logger *slog.Logger, reg *rpc.Registry, promReg *prometheus.Registry, hsts bool) (http.Handler, error) {
	if err := promReg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}
	if err := promReg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	m := metrics.New(metricsNamespace, promReg)

	d := rpc.NewDispatcher(reg,
		rpc.WithLogger(logger),
		rpc.WithObserver(m),
		rpc.WithInvokeInterceptor(m.InFlight()),
		rpc.WithDiagnosticHook(func(ctx context.Context, payload []byte, req *rpc.Request, err error) {
			method := ""
			if req != nil {
				method = req.Method
			}
			logger.DebugContext(ctx, "rpc: diagnostic", "method", method, "payload_bytes", len(payload), "error", err)
		}),
	)

	opts := []middleware.SecurityHeadersOption{middleware.WithAllowedOrigins(cfg.AllowedOrigins...)}
	if !hsts {
		opts = append(opts, middleware.WithoutHSTS())
	}
	processors := []endpoint.Processor{
		middleware.AccessLog(logger),
		middleware.NewSecurityHeadersProcessor(opts...),
		middleware.BodyLimit(cfg.MaxBodyBytes),
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.RPCPath, d.Handler(processors...))
	mux.Handle(cfg.RPCPath+"/schema", d.SchemaHandler(processors...))
	if cfg.WSPath != "" {
		mux.Handle("GET "+cfg.WSPath, wsrpc.New(d,
			wsrpc.WithAllowedOrigins(cfg.AllowedOrigins...),
			wsrpc.WithLogger(logger),
			wsrpc.WithReadLimit(cfg.MaxBodyBytes),
		))
	}
	if cfg.MetricsPath != "" {
		mux.Handle("GET "+cfg.MetricsPath, promhttp.HandlerFor(promReg, promhttp.HandlerOpts{
			ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		}))
	}
	return mux, nil
}

// serve runs h on cfg.Addr until ctx is done, then shuts down gracefully.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, h http.Handler) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", ln.Addr().String(), "rpc", cfg.RPCPath, "ws", cfg.WSPath, "metrics", cfg.MetricsPath)
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
