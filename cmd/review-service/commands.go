package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/nitesh/exchange_reviews/internal/api"
	"github.com/nitesh/exchange_reviews/internal/pipeline"
)

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgFile)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Logging.Mode == "production" {
				gin.SetMode(gin.ReleaseMode)
			}
			handler := api.NewHandler(a.svc, a.tokens, a.log)
			srv := &http.Server{
				Addr:              ":" + a.cfg.Server.Port,
				Handler:           api.NewRouter(handler, a.cfg.Server.AllowedOrigins),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("listening", "addr", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			a.log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			shutdownErr := srv.Shutdown(shutdownCtx)

			// An ingestion run is detached from its request; let it finish
			// before the store is closed.
			drainCtx, cancelDrain := context.WithTimeout(context.Background(), ingestDrainTimeout)
			defer cancelDrain()
			if err := a.svc.WaitIdle(drainCtx); err != nil {
				a.log.Warn("ingestion still running at exit, abandoning it", "error", err)
			}
			return shutdownErr
		},
	}
}

func newIngestCmd(cfgFile *string) *cobra.Command {
	var reprocess bool
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion batch over the configured sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgFile)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.svc.RunIngestion(ctx, pipeline.Options{Reprocess: reprocess})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().BoolVar(&reprocess, "reprocess", false, "Score reviews again even if already stored")
	return cmd
}

func newMigrateCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the reviews table and indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(*cfgFile)
			if err != nil {
				return err
			}
			defer log.Sync()

			conn, err := openDB(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer conn.Close()
			log.Info("migrations applied", "driver", conn.DriverName())
			return nil
		},
	}
}

func newAdminTokenCmd(cfgFile *string) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Print a signed admin bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(*cfgFile)
			if err != nil {
				return err
			}
			defer log.Sync()

			if cfg.Admin.TokenSecret == "" {
				return errors.New("admin token secret is not configured")
			}
			tok, exp, err := tokenService(cfg.Admin).Sign(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			log.Info("admin token issued", "subject", subject, "expires", exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "Token subject")
	return cmd
}
