package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	if err := a.cleanup.StartSchedule(a.cfg.CleanupCronSchedule); err != nil {
		a.close(ctx)
		return fmt.Errorf("starting cleanup schedule: %w", err)
	}

	httpServer := &http.Server{
		Addr:    a.cfg.ListenAddr,
		Handler: a.server.Router(),
	}

	a.log.Notice("nsl-router serving on %s", a.cfg.ListenAddr)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.close(ctx)
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		a.log.Notice("received signal %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.Warning("graceful shutdown failed: %s", err)
	}
	a.close(shutdownCtx)
	return nil
}
