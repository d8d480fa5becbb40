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

	"github.com/spf13/cobra"

	"github.com/beisanytime/shiurhub"
	shiurhubhttp "github.com/beisanytime/shiurhub/http"
	"github.com/beisanytime/shiurhub/identity"
	"github.com/beisanytime/shiurhub/kv"
	"github.com/beisanytime/shiurhub/objectstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the Shiurhub HTTP server.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int("port", 8787, "HTTP server port")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	store, err := kv.Connect(ctx, cfg.KV)
	if err != nil {
		return fmt.Errorf("connect kv: %w", err)
	}
	defer func() { _ = store.Close() }()
	slog.Info("connected to kv store", "type", cfg.KV.Type)

	gateway, err := objectstore.NewGateway(cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("create object store gateway: %w", err)
	}

	opts := []shiurhub.ServiceOption{}
	if cfg.ObjectStore.UploadExpiry > 0 {
		opts = append(opts, shiurhub.WithUploadExpiry(cfg.ObjectStore.UploadExpiry))
	}
	service := shiurhub.NewService(store, gateway, opts...)

	verifier := identity.NewVerifier(cfg.Identity)

	handler := shiurhubhttp.NewHandler(&shiurhubhttp.HandlerConfig{
		CORS:     cfg.CORS,
		Verifier: verifier,
	}, service)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "err", err)
		}
		cancel()
	}()

	slog.Info("starting server", "addr", addr, "bucket", cfg.ObjectStore.Bucket)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
