package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// fetcher performs GET requests, retrying with exponential backoff on HTTP 429.
type fetcher struct {
	name       string
	httpClient *http.Client
	header     http.Header
	delay      time.Duration
	maxRetries int
}

func newFetcher(name string, timeout, delay time.Duration, maxRetries int, header http.Header) fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if delay <= 0 {
		delay = 2 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return fetcher{
		name:       name,
		httpClient: &http.Client{Timeout: timeout},
		header:     header,
		delay:      delay,
		maxRetries: maxRetries,
	}
}

func (f fetcher) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := range f.maxRetries + 1 {
		if attempt > 0 {
			delay := f.delay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("creating %s request: %w", f.name, err)
		}
		for k, v := range f.header {
			req.Header[k] = v
		}
		req.Header.Set("Accept", "application/json")

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request failed: %w", f.name, err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s response: %w", f.name, err)
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("%s rate limited (attempt %d/%d)", f.name, attempt+1, f.maxRetries+1)
			continue
		}

		return nil, fmt.Errorf("%s HTTP %d: %s", f.name, resp.StatusCode, string(body))
	}

	return nil, lastErr
}
