package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/groundtruth/internal/api"
	"github.com/dgallion1/groundtruth/internal/pipeline"
	"github.com/dgallion1/groundtruth/internal/workflow"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the groundtruth HTTP API.

Runs are submitted with POST /api/runs (a JSON document structure) or
POST /api/runs/upload (a paper file) and polled at GET /api/runs/{id}.
Prometheus metrics are served on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log, err := newLogger()
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort != "" {
			cfg.Port = servePort
		}
		if err := cfg.ValidateServer(); err != nil {
			log.Error("invalid configuration", "error", err)
			return err
		}

		wf, err := workflow.Resolve(cfg.WorkflowFile)
		if err != nil {
			return err
		}

		a, err := newApp(cfg, log)
		if err != nil {
			return err
		}
		defer a.close()

		orch := pipeline.NewOrchestrator(a.runner, cfg.WorkerCount, cfg.MaxQueueSize, cfg.JobTTL, log)
		orch.Start(ctx)

		srv := api.NewServer(orch, api.Options{
			Workflow: wf,
			Model:    a.client.Model(),
			Stats:    a.client.Stats,
		}, log, cfg)

		httpServer := &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      srv,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("starting groundtruth", "port", cfg.Port, "workflow", wf.Name, "model", a.client.Model())
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				log.Error("server error", "error", err)
				orch.Stop()
				return err
			}
		case <-ctx.Done():
			log.Info("shutting down...")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Warn("http shutdown", "error", err)
			}
		}

		// Workers stop before the figure cache closes.
		orch.Stop()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "port to listen on (overrides PORT)")
}
