package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/factlens/internal/jobs"
	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/server"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve exposes analyses and source evaluation over HTTP.

Endpoints:
  POST /v1/analyses           run an analysis ({"input": "...", "job_id": "..."})
  POST /v1/sources/evaluate   score a domain ({"domain": "..."})
  GET  /healthz               liveness
  GET  /metrics               Prometheus metrics

With job_store.url set, progress and results of requests carrying a job_id
are written back to the job store.

Example:
  factlens serve --addr :8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
	addRunFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := runConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	sink, err := jobSink(cfg.JobStore, logger)
	if err != nil {
		return err
	}

	opts := server.Options{
		Analyzer:       a.pipeline,
		Sink:           sink,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         logger.Named("server"),
	}
	if a.evaluator != nil {
		opts.Evaluator = a.evaluator
	}

	if err := server.New(opts).ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// jobSink writes job updates to the configured job store, or only logs them
func jobSink(cfg model.JobStoreConfig, logger *zap.Logger) (jobs.Sink, error) {
	logSink := jobs.NewLogSink(logger.Named("jobs"))
	if cfg.URL == "" {
		return logSink, nil
	}
	httpSink, err := jobs.NewHTTPSink(cfg)
	if err != nil {
		return nil, fmt.Errorf("create job store sink: %w", err)
	}
	return jobs.Multi{logSink, httpSink}, nil
}
