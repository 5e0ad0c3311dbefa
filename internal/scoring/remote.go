package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const predictPath = "/predict"

// RemoteScorer calls a model service: POST /predict with Inputs as JSON,
// answered by {"quality_score": n}.
type RemoteScorer struct {
	endpoint   string
	client     *http.Client
	logger     *zap.Logger
	maxRetries uint64
}

type predictResponse struct {
	QualityScore *float64 `json:"quality_score"`
}

// RemoteOption configures a RemoteScorer.
type RemoteOption func(*RemoteScorer)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *RemoteScorer) { r.client = c }
}

// WithRetries sets how many times a 5xx or transport failure is retried.
func WithRetries(n uint64) RemoteOption {
	return func(r *RemoteScorer) { r.maxRetries = n }
}

// WithRemoteLogger sets the logger.
func WithRemoteLogger(l *zap.Logger) RemoteOption {
	return func(r *RemoteScorer) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRemoteScorer targets endpoint (a base URL). timeout bounds each attempt.
func NewRemoteScorer(endpoint string, timeout time.Duration, opts ...RemoteOption) *RemoteScorer {
	r := &RemoteScorer{
		endpoint:   strings.TrimRight(endpoint, "/"),
		client:     &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
		maxRetries: 2,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RemoteScorer) Score(ctx context.Context, in Inputs) (float64, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("encode inputs: %w", err)
	}

	var score float64
	attempt := 0
	op := func() error {
		attempt++
		v, err := r.predict(ctx, body)
		if err != nil {
			r.logger.Warn("model service call failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		score = v
		return nil
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = time.Second
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, r.maxRetries), ctx)); err != nil {
		return 0, fmt.Errorf("model service: %w", err)
	}
	return Normalize(score), nil
}

func (r *RemoteScorer) predict(ctx context.Context, body []byte) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+predictPath, bytes.NewReader(body))
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, backoff.Permanent(ctx.Err())
		}
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return 0, fmt.Errorf("reading response: %w", err)
	}
	switch {
	case resp.StatusCode >= 500:
		return 0, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	case resp.StatusCode >= 400:
		return 0, backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var out predictResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if out.QualityScore == nil {
		return 0, backoff.Permanent(errors.New("response has no quality_score"))
	}
	return *out.QualityScore, nil
}
