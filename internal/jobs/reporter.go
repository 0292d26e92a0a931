package jobs

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ppiankov/factlens/internal/model"
)

// Reporter binds one job to a sink. Progress never moves backwards and
// write-back failures are logged, never returned to the analysis.
type Reporter struct {
	ctx    context.Context
	jobID  string
	sink   Sink
	logger *zap.Logger

	mu      sync.Mutex
	percent int
}

// NewReporter creates a reporter. Updates are sent with ctx stripped of its
// cancellation so a cancelled job still reports its final state.
func NewReporter(ctx context.Context, jobID string, sink Sink, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		ctx:    context.WithoutCancel(ctx),
		jobID:  jobID,
		sink:   sink,
		logger: logger.With(zap.String("job_id", jobID)),
	}
}

// Progress reports a RUNNING update. Its signature matches the pipeline's
// progress callback.
func (r *Reporter) Progress(percent int, message string) {
	r.mu.Lock()
	if percent < r.percent {
		percent = r.percent
	}
	r.percent = percent
	r.mu.Unlock()

	r.send(Update{JobID: r.jobID, Status: model.StatusRunning, Percent: percent, Message: message})
}

// Finish sends the final status and report. Failed and cancelled runs carry
// the error as their message.
func (r *Reporter) Finish(report *model.Report, err error) {
	u := Update{JobID: r.jobID, Percent: 100, Report: report}
	switch {
	case report != nil:
		u.Status = report.Status
		u.Message = report.Error
	case err != nil:
		u.Status = model.StatusFailed
	default:
		u.Status = model.StatusSucceeded
	}
	if err != nil && u.Message == "" {
		u.Message = err.Error()
	}
	r.send(u)
}

func (r *Reporter) send(u Update) {
	if r.sink == nil {
		return
	}
	if err := r.sink.Send(r.ctx, u); err != nil {
		r.logger.Warn("job write-back failed", zap.String("status", string(u.Status)), zap.Error(err))
	}
}
