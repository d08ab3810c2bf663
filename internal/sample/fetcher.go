package sample

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"
)

// maxSampleBytes bounds a sample download.
const maxSampleBytes = 10 << 20

// ErrSampleTooLarge is returned when a sample exceeds maxSampleBytes.
var ErrSampleTooLarge = errors.New("sample exceeds size limit")

// HTTPFetcher loads samples with a plain GET against the bundle server.
type HTTPFetcher struct {
	baseURL    string
	httpClient *http.Client
	maxBytes   int64
}

// NewHTTPFetcher returns a fetcher for refs relative to baseURL.
func NewHTTPFetcher(baseURL string, httpClient *http.Client) *HTTPFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPFetcher{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient, maxBytes: maxSampleBytes}
}

// WithMaxBytes caps the size of a fetched sample. Non-positive n keeps the
// default.
func (f *HTTPFetcher) WithMaxBytes(n int64) *HTTPFetcher {
	if n > 0 {
		f.maxBytes = n
	}
	return f
}

// Fetch returns the sample bytes. Any non-2xx answer is an error.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	url := f.baseURL + "/" + strings.TrimLeft(ref, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create sample request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sample %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("sample %s returned status %d", ref, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read sample %s: %w", ref, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("sample %s: %w", ref, ErrSampleTooLarge)
	}
	return data, nil
}

// FSFetcher loads samples from the static directory the page is served from.
type FSFetcher struct {
	fsys fs.FS
}

// NewFSFetcher returns a fetcher rooted at fsys.
func NewFSFetcher(fsys fs.FS) *FSFetcher {
	return &FSFetcher{fsys: fsys}
}

func (f *FSFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(f.fsys, strings.TrimLeft(ref, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to read sample %s: %w", ref, err)
	}
	return data, nil
}
