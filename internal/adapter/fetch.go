package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	httpTimeout      = 15 * time.Second
	maxRetries       = 3
	backoffBase      = 500 * time.Millisecond
	maxBodyBytes     = 8 << 20 // none of the sources legitimately exceeds 8 MiB
	defaultUserAgent = "procurepulse-aggregator/1.0"
)

// fetcher is the shared HTTP core behind every adapter. Transient network
// failures are retried with bounded exponential backoff; non-2xx responses
// fail immediately as HTTPStatusError.
type fetcher struct {
	client    *http.Client
	userAgent string
}

func newFetcher() *fetcher {
	return &fetcher{
		client:    &http.Client{Timeout: httpTimeout},
		userAgent: defaultUserAgent,
	}
}

// get performs a GET with retry and returns the response body.
func (f *fetcher) get(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(backoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		b, err := f.getOnce(ctx, url)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *fetcher) getOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json, application/rss+xml, text/html;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		// Timeouts, resets, and DNS failures all land here; each is worth
		// another attempt within the retry budget.
		return nil, retry.RetryableError(fmt.Errorf("http GET %s: %w", url, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("read body from %s: %w", url, err))
	}
	return body, nil
}
