package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"hoopval/adapters/api"
	"hoopval/adapters/rng"
)

func newServeCmd(global *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the validation API",
		Long: `Start the HTTP API:

  POST /v1/validations          run the pipeline on a JSON batch and store the run
  GET  /v1/validations          list stored runs
  GET  /v1/validations/{runID}  fetch a stored run (?format=markdown|html|json)
  GET  /healthz                 liveness
  GET  /metrics                 Prometheus metrics

Runs are stored in PostgreSQL when HOOPVAL_DATABASE_URL is set, in memory otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := global.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			ctx := cmd.Context()

			pipeline, err := newPipeline(cfg, logger)
			if err != nil {
				return err
			}
			ledger, closeLedger, err := openLedger(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeLedger()

			server, err := api.NewServer(api.Options{
				Pipeline:     pipeline,
				RNG:          rng.NewSeededAdapter(),
				Ledger:       ledger,
				Logger:       logger,
				MaxBodyBytes: cfg.Server.MaxBodyBytes,
			})
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      server.Routes(),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening on %s", cfg.Server.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
