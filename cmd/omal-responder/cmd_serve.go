package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/omalmisr/omal-responder/internal/api"
	"github.com/omalmisr/omal-responder/internal/lifecycle"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/JSON API server and the retention scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			a, err := newApp(ctx, logger, appOptions{})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.Close()

			if cfg.Storage.PruneSchedule != "" && cfg.Storage.RetentionDays > 0 {
				mgr := lifecycle.NewManager(a.turns, cfg.Storage.RetentionDays, logger)
				sched, schedErr := lifecycle.NewScheduler(mgr, cfg.Storage.PruneSchedule, time.Minute, logger)
				if schedErr != nil {
					return fmt.Errorf("serve: %w", schedErr)
				}
				sched.Start()
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					sched.Stop(stopCtx)
				}()
			}

			srv := api.NewServer(a.responder, a.menu, a.completer, cfg.Comments.Concurrency, logger, cfg.API.AuthToken)

			if cfg.API.AuthToken == "" {
				logger.Warn("HTTP API: auth is DISABLED; set OMAL_RESPONDER_API_AUTH_TOKEN or api.auth_token for production use")
			}
			if cfg.Delivery.PageToken == "" {
				logger.Warn("delivery: no page token configured; replies are returned but not sent")
			}

			httpSrv := &http.Server{
				Addr:              cfg.API.ListenAddr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      90 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("HTTP API server starting", "addr", cfg.API.ListenAddr)
				if listenErr := httpSrv.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
					errCh <- fmt.Errorf("serve: HTTP server: %w", listenErr)
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case startErr := <-errCh:
				if startErr != nil {
					return startErr
				}
				return nil
			}

			const shutdownTimeout = 10 * time.Second
			if shutdownErr := api.Shutdown(httpSrv, shutdownTimeout); shutdownErr != nil {
				return fmt.Errorf("serve: graceful shutdown: %w", shutdownErr)
			}

			// Drain the errCh in case ListenAndServe returned after Shutdown.
			if startErr := <-errCh; startErr != nil {
				return startErr
			}

			return nil
		},
	}
	return cmd
}
