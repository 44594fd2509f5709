// Package payload implements the task payload fetcher (C3): retrieving
// an opaque, serialised invocation blob for a schedule's task id from
// the web collaborator.
package payload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"cronbridge"
	"cronbridge/internal/metrics"
)

// Fetcher fetches serialised task payloads over HTTP.
type Fetcher struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	client  *http.Client
	limiter *rate.Limiter
}

// New returns a Fetcher against a webserver at host:port, authorised
// with token, bounded by timeout. A rate limiter throttles outbound
// fetches so a struggling web collaborator isn't hammered by a backlog
// of due schedules.
func New(host string, port uint16, token string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		BaseURL: fmt.Sprintf("http://%s:%d", host, port),
		Token:   token,
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(20), 5),
	}
}

// FetchPayload retrieves the opaque blob for taskID.
func (f *Fetcher) FetchPayload(ctx context.Context, taskID string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", cronbridge.ErrFetch, err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	u := f.BaseURL + "/get_pickled_task?task_id=" + url.QueryEscape(taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", cronbridge.ErrFetch, err)
	}
	req.Header.Set("Authorization", "Bearer "+f.Token)

	start := time.Now()
	resp, err := f.client.Do(req)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cronbridge.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: webserver returned %s", cronbridge.ErrFetch, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", cronbridge.ErrFetch, err)
	}
	return body, nil
}
