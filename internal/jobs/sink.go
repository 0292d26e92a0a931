// Package jobs writes analysis progress and results back to the external
// job store. Nothing here persists job state.
package jobs

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ppiankov/factlens/internal/model"
)

// Update is one write-back to the job store
type Update struct {
	JobID   string          `json:"job_id"`
	Status  model.RunStatus `json:"status"`
	Percent int             `json:"percent"`
	Message string          `json:"message,omitempty"`
	Report  *model.Report   `json:"report,omitempty"` // Set on the final update only
}

// Sink receives job updates
type Sink interface {
	Send(ctx context.Context, u Update) error
}

// LogSink logs updates
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that logs every update
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Send logs the update
func (s *LogSink) Send(_ context.Context, u Update) error {
	fields := []zap.Field{
		zap.String("job_id", u.JobID),
		zap.String("status", string(u.Status)),
		zap.Int("percent", u.Percent),
	}
	if u.Message != "" {
		fields = append(fields, zap.String("message", u.Message))
	}
	if u.Report != nil {
		fields = append(fields, zap.Int("verdicts", len(u.Report.Verdicts)))
	}
	s.logger.Info("job update", fields...)
	return nil
}

// MemorySink records updates in order
type MemorySink struct {
	mu      sync.Mutex
	updates []Update
}

// Send records the update
func (s *MemorySink) Send(_ context.Context, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	return nil
}

// Updates returns a copy of the recorded updates
func (s *MemorySink) Updates() []Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Update, len(s.updates))
	copy(out, s.updates)
	return out
}

// Last returns the most recent update
func (s *MemorySink) Last() (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updates) == 0 {
		return Update{}, false
	}
	return s.updates[len(s.updates)-1], true
}

// Multi sends every update to all sinks
type Multi []Sink

// Send fans the update out, joining errors
func (m Multi) Send(ctx context.Context, u Update) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
