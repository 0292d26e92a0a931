// Package server exposes analyses and source evaluation over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ppiankov/factlens/internal/jobs"
	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/pipeline"
	"github.com/ppiankov/factlens/internal/sourcerel"
)

// Analyzer runs one analysis with progress callbacks
type Analyzer interface {
	Run(ctx context.Context, input model.Input, progress pipeline.ProgressFunc) (*model.Report, error)
}

// SourceEvaluator scores a domain's reliability
type SourceEvaluator interface {
	Evaluate(ctx context.Context, domain, requester string) (model.CachedScore, error)
}

// Options wires the server
type Options struct {
	Analyzer       Analyzer
	Evaluator      SourceEvaluator // nil disables /v1/sources/evaluate
	Sink           jobs.Sink       // Job write-back; nil ignores job ids
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Server handles the HTTP API
type Server struct {
	analyzer  Analyzer
	evaluator SourceEvaluator
	sink      jobs.Sink
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates a server
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		analyzer:  opts.Analyzer,
		evaluator: opts.Evaluator,
		sink:      opts.Sink,
		timeout:   opts.RequestTimeout,
		logger:    logger,
	}
}

// SetupRouter registers every route
func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", s.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/analyses", s.Analyze)
	v1.POST("/sources/evaluate", s.EvaluateSource)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("client", c.ClientIP()))
	}
}

// Health reports liveness
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AnalyzeRequest is the body of POST /v1/analyses
type AnalyzeRequest struct {
	Input string `json:"input"`
	JobID string `json:"job_id,omitempty"`
}

// Analyze runs an analysis synchronously. With a job id, progress and the
// final result are also written back to the job store.
func (s *Server) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "input is required"})
		return
	}

	ctx := c.Request.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var reporter *jobs.Reporter
	var progress pipeline.ProgressFunc
	if req.JobID != "" && s.sink != nil {
		reporter = jobs.NewReporter(ctx, req.JobID, s.sink, s.logger)
		progress = reporter.Progress
	}

	report, err := s.analyzer.Run(ctx, model.NewInput(req.Input), progress)
	if reporter != nil {
		reporter.Finish(report, err)
	}
	if report == nil {
		s.logger.Error("analysis failed without a report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
		return
	}
	c.JSON(statusFor(report), report)
}

func statusFor(report *model.Report) int {
	switch report.Status {
	case model.StatusSucceeded:
		return http.StatusOK
	case model.StatusCancelled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusUnprocessableEntity
	}
}

// EvaluateRequest is the body of POST /v1/sources/evaluate
type EvaluateRequest struct {
	Domain string `json:"domain"`
}

// EvaluateSource scores one domain. The client IP is the requester for
// per-IP rate limiting.
func (s *Server) EvaluateSource(c *gin.Context) {
	if s.evaluator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "source reliability is disabled"})
		return
	}
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	score, err := s.evaluator.Evaluate(c.Request.Context(), req.Domain, c.ClientIP())
	switch {
	case errors.Is(err, sourcerel.ErrInvalidDomain):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		s.logger.Warn("source evaluation failed", zap.String("domain", req.Domain), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "evaluation failed", "score": score})
	default:
		c.JSON(http.StatusOK, score)
	}
}
