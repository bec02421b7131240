package upstream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrFetchFailed = errors.New("upstream fetch failed")

// Response is a fully buffered upstream reply.
type Response struct {
	StatusCode int
	Body       []byte
}

type Fetcher interface {
	Fetch(ctx context.Context, targetURL string) (*Response, error)
}

type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a fetcher whose every request is bounded by timeout.
// A non-positive timeout falls back to 10 seconds.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // upstreams are never verified

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Fetch issues GET targetURL and reads the whole body. Any transport error,
// including a body that cannot be read to the end, wraps ErrFetchFailed.
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFetchFailed, err)
	}

	res, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetchFailed, err)
	}

	return &Response{
		StatusCode: res.StatusCode,
		Body:       body,
	}, nil
}
