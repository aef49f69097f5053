// Command processor runs the worker runtime: it loads workflow
// definitions from the document store, subscribes to the input topics
// and transforms messages until interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/payflowio/payflow/config"
	"github.com/payflowio/payflow/message"
	"github.com/payflowio/payflow/processor"
	"github.com/payflowio/payflow/workflow/store"
)

const version = "0.1.0"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:     "processor",
		Short:   "Workflow-driven message transformation worker",
		Version: version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	logger := newLogger()
	slog.SetDefault(logger)
	message.SetAuditSource("processor")

	cfg, err := config.NewLoader(logger).LoadProcessor(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	loader, err := store.NewLoader(ctx, store.Options{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		return fmt.Errorf("connect workflow store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = loader.Close(closeCtx)
	}()

	workflows, err := loader.Load(ctx, cfg.WorkflowIDs)
	if err != nil {
		return fmt.Errorf("load workflows: %w", err)
	}
	logger.Info("workflows loaded", "count", len(workflows), "ids", cfg.WorkflowIDs)

	conn, err := nats.Connect(cfg.NATS.URL, nats.Name("payflow-processor"))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer conn.Close()

	js, err := jetstream.New(conn)
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}

	if err := processor.EnsureStream(ctx, js, cfg.NATS.Stream, workflows, cfg.OutputTopic); err != nil {
		return err
	}

	proc, err := processor.New(js, workflows, processor.Config{
		StreamName:     cfg.NATS.Stream,
		ConsumerName:   cfg.ConsumerName,
		OutputTopic:    cfg.OutputTopic,
		MaxConcurrency: cfg.MaxConcurrency,
	}, logger)
	if err != nil {
		return fmt.Errorf("create processor: %w", err)
	}

	if cfg.MetricsPort > 0 {
		go serveMetrics(logger, cfg.MetricsPort)
	}

	if err := proc.Start(ctx); err != nil {
		return fmt.Errorf("start processor: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	proc.Stop()
	return nil
}

func serveMetrics(logger *slog.Logger, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics listener started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener failed", "error", err)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOGLEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
