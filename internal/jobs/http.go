package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/factlens/internal/model"
)

// HTTPSink posts updates to the job store at <base>/v1/jobs/<id>
type HTTPSink struct {
	base   string
	client *http.Client
}

// NewHTTPSink creates a write-back client for the configured job store
func NewHTTPSink(cfg model.JobStoreConfig) (*HTTPSink, error) {
	base := strings.TrimRight(cfg.URL, "/")
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid job store URL %q", cfg.URL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSink{base: base, client: &http.Client{Timeout: timeout}}, nil
}

// Send posts the update. Non-2xx answers are errors.
func (s *HTTPSink) Send(ctx context.Context, u Update) error {
	if u.JobID == "" {
		return fmt.Errorf("job update without job id")
	}
	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal job update: %w", err)
	}

	endpoint := s.base + "/v1/jobs/" + url.PathEscape(u.JobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create job update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send job update: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("job store answered %d for job %s", resp.StatusCode, u.JobID)
	}
	return nil
}
