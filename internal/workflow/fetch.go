package workflow

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/user/entityflow/internal/core/errs"
)

// Fetcher retrieves the raw bytes a workflow's step-0 format decoder will
// consume. HTTPFetcher is the only production implementation; tests supply
// a function literal.
type Fetcher interface {
	Fetch(ctx context.Context, workflowUUID string) ([]byte, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, workflowUUID string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, workflowUUID string) ([]byte, error) {
	return f(ctx, workflowUUID)
}

// HTTPFetcher polls a fixed URL per workflow, grounded on the same
// request/response shape used elsewhere for polling external endpoints.
type HTTPFetcher struct {
	URLs    map[string]string // workflow uuid -> endpoint URL
	Headers map[string]string
	client  *http.Client
}

func NewHTTPFetcher(urls map[string]string, headers map[string]string) *HTTPFetcher {
	return &HTTPFetcher{URLs: urls, Headers: headers, client: &http.Client{Timeout: 30 * time.Second}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, workflowUUID string) ([]byte, error) {
	url, ok := f.URLs[workflowUUID]
	if !ok {
		return nil, errs.Newf(errs.Config, "no fetch endpoint configured for workflow %s", workflowUUID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Io, err, "build fetch request")
	}
	for k, v := range f.Headers {
		req.Header.Set(k, v)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.Io, err, "fetch request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.Newf(errs.Io, "fetch request failed: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.Io, err, "read fetch response body")
	}
	return body, nil
}

// HTTPDestination POSTs a ToDef::Format sink's encoded bytes to a fixed URL
// per output name, the outbound counterpart of HTTPFetcher.
type HTTPDestination struct {
	URLs    map[string]string // output ref -> endpoint URL
	Headers map[string]string
	client  *http.Client
}

func NewHTTPDestination(urls map[string]string, headers map[string]string) *HTTPDestination {
	return &HTTPDestination{URLs: urls, Headers: headers, client: &http.Client{Timeout: 30 * time.Second}}
}

func (d *HTTPDestination) Send(ctx context.Context, output string, raw []byte) error {
	url, ok := d.URLs[output]
	if !ok {
		return errs.Newf(errs.Config, "no destination endpoint configured for output %s", output)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return errs.Wrap(errs.Io, err, "build destination request")
	}
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return errs.Wrap(errs.Io, err, "destination request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errs.Newf(errs.Io, "destination request failed: status %d", resp.StatusCode)
	}
	return nil
}

