// Command ingress runs the HTTP frontend that accepts raw ISO 20022
// payloads and enqueues them on the input topic.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"github.com/payflowio/payflow/config"
	"github.com/payflowio/payflow/ingress"
	"github.com/payflowio/payflow/message"
)

const version = "0.1.0"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:     "ingress",
		Short:   "HTTP frontend for message initiation",
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
	message.SetAuditSource("ingress")

	cfg, err := config.NewLoader(logger).LoadIngress(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	conn, err := nats.Connect(cfg.NATS.URL, nats.Name("payflow-ingress"))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer conn.Close()

	js, err := jetstream.New(conn)
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}

	server := ingress.New(js, ingress.Config{
		InputTopic:     cfg.InputTopic,
		PublishTimeout: time.Duration(cfg.PublishTimeout),
		DefaultTenant:  cfg.DefaultTenant,
		DefaultOrigin:  cfg.DefaultOrigin,
	}, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Hostname, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ingress listening", "addr", addr, "input_topic", cfg.InputTopic)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
	}
	return nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOGLEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
