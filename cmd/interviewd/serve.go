package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeeves-cluster-organization/interviewcore/coreengine/config"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/grpc"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/kernel"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/observability"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/persistence"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/runtime"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the interview service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), v)
		},
	}
	cmd.Flags().String("listen", ":50051", "gRPC listen address")
	cmd.Flags().String("metrics-listen", "", "Prometheus /metrics address (empty disables)")
	cmd.Flags().String("otlp-endpoint", "", "OTLP gRPC collector endpoint (empty disables tracing)")
	cmd.Flags().Bool("otlp-insecure", true, "use plaintext for the OTLP exporter")
	cmd.Flags().Float64("trace-sample-ratio", 1, "fraction of traces sampled")
	cmd.Flags().String("environment", "development", "deployment environment reported in traces")
	cmd.Flags().Bool("dev-logging", false, "human-readable console logs")
	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	cfg, err := loadEngineConfig(v)
	if err != nil {
		return err
	}

	logger, err := observability.NewZapLogger(cfg.LogLevel, v.GetBool("dev-logging"))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("interviewd_starting", "version", version, "address", v.GetString("listen"))

	script, err := config.LoadPhaseScript(cfg.PhaseScriptPath)
	if err != nil {
		return err
	}

	if endpoint := v.GetString("otlp-endpoint"); endpoint != "" {
		shutdown, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName:    "interviewd",
			ServiceVersion: version,
			Environment:    v.GetString("environment"),
			Endpoint:       endpoint,
			Insecure:       v.GetBool("otlp-insecure"),
			SampleRatio:    v.GetFloat64("trace-sample-ratio"),
		})
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("tracer_shutdown_failed", "error", err.Error())
			}
		}()
		logger.Info("tracing_enabled", "endpoint", endpoint)
	}

	store, err := persistence.OpenSQLite(ctx, v.GetString("db"))
	if err != nil {
		return err
	}
	defer store.Close()

	eng, err := runtime.NewEngine(runtime.Options{
		Config: cfg,
		Script: script,
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	restored, err := eng.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	logger.Info("session_restored", "records", restored, "phase", string(eng.Snapshot().Phase))

	if addr := v.GetString("metrics-listen"); addr != "" {
		metrics := startMetricsServer(addr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = metrics.Shutdown(shutdownCtx)
		}()
	}

	server := grpc.NewGracefulServer(grpc.NewInterviewServer(eng, logger), v.GetString("listen"))
	if err := server.Start(ctx); err != nil {
		return err
	}
	logger.Info("interviewd_stopped")
	return nil
}

func startMetricsServer(addr string, logger *observability.ZapLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	kernel.SafeGo(logger, "metrics_server", func() {
		logger.Info("metrics_server_started", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_failed", "error", err.Error())
		}
	}, nil)
	return srv
}
