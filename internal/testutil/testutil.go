package testutil

import (
	"context"
	"sync"

	"github.com/goccy/go-json"

	"mapproxy/internal/fetcher"
)

// MockFetcher is a mock implementation of the Fetcher interface for testing.
// It records every call so tests can assert on the requested URLs.
type MockFetcher struct {
	FetchFunc func(ctx context.Context, source fetcher.Source, url string) fetcher.Result

	mu    sync.Mutex
	calls []string
}

// Fetch implements the Fetcher interface
func (m *MockFetcher) Fetch(ctx context.Context, source fetcher.Source, url string) fetcher.Result {
	m.mu.Lock()
	m.calls = append(m.calls, url)
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, source, url)
	}
	return fetcher.Ok(source, url, json.RawMessage(`{}`))
}

// Calls returns the URLs requested so far.
func (m *MockFetcher) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// NewMockFetcher creates a mock fetcher answering per source with a fixed body
// or a fixed error. A source missing from both maps gets an empty object.
func NewMockFetcher(bodies map[fetcher.Source]string, errs map[fetcher.Source]*fetcher.FetchError) *MockFetcher {
	return &MockFetcher{
		FetchFunc: func(ctx context.Context, source fetcher.Source, url string) fetcher.Result {
			if err, ok := errs[source]; ok {
				return fetcher.Failed(source, url, err)
			}
			if body, ok := bodies[source]; ok {
				return fetcher.Ok(source, url, json.RawMessage(body))
			}
			return fetcher.Ok(source, url, json.RawMessage(`{}`))
		},
	}
}
