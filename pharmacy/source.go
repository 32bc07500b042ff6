package pharmacy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cosmomed/pharmacy-locator/logging"
)

// ErrFetchFailed wraps every failure of a bulk fetch.
var ErrFetchFailed = errors.New("pharmacy fetch failed")

// HTTPSource fetches the bulk pharmacy list from the directory endpoint.
type HTTPSource struct {
	baseURL       string
	client        *http.Client
	maxRetries    uint64
	retryInterval time.Duration
}

// SourceOption customises an HTTPSource.
type SourceOption func(*HTTPSource)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) SourceOption {
	return func(s *HTTPSource) { s.client = c }
}

// WithRetryInterval sets the initial backoff between attempts.
func WithRetryInterval(d time.Duration) SourceOption {
	return func(s *HTTPSource) { s.retryInterval = d }
}

// NewHTTPSource creates a source for baseURL. Failed attempts are retried
// at most maxRetries times with exponential backoff.
func NewHTTPSource(baseURL string, timeout time.Duration, maxRetries int, opts ...SourceOption) *HTTPSource {
	if maxRetries < 0 {
		maxRetries = 0
	}
	s := &HTTPSource{
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{Timeout: timeout},
		maxRetries:    uint64(maxRetries),
		retryInterval: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// URL builds the request URL for q.
func (s *HTTPSource) URL(q Query) string {
	params := url.Values{}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.District != "" {
		params.Set("district", q.District)
	}
	if q.MOH != "" {
		params.Set("moh", q.MOH)
	}

	u := s.baseURL + "/pharmacies"
	if encoded := params.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

// Fetch downloads and decodes the list for q.
func (s *HTTPSource) Fetch(ctx context.Context, q Query) (*Batch, error) {
	target := s.URL(q)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryInterval
	policy.MaxInterval = 4 * s.retryInterval

	attempt := 0
	batch, err := backoff.RetryWithData[*Batch](func() (*Batch, error) {
		attempt++
		return s.fetchOnce(ctx, target)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, s.maxRetries), ctx))
	if err != nil {
		logging.Warn("Pharmacy fetch failed", "url", target, "attempts", attempt, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	logging.Debug("Pharmacy list fetched", "url", target, "attempts", attempt,
		"total", batch.Stats.Total, "with_coords", batch.Stats.WithCoords)
	return batch, nil
}

func (s *HTTPSource) fetchOnce(ctx context.Context, target string) (*Batch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn("Failed to close response body", "error", err)
		}
	}()

	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("directory returned status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, backoff.Permanent(fmt.Errorf("directory returned status %d", resp.StatusCode))
	}

	batch, err := Decode(resp.Body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return batch, nil
}
