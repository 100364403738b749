package fetcher

import "context"

// Source names the upstream feed a request is addressed to.
type Source string

const (
	// SourcePlayer is the live player feed
	SourcePlayer Source = "player"
	// SourceMap is the marker feed
	SourceMap Source = "map"
)

// Fetcher is the interface the aggregation layer uses to reach an upstream.
// Implementations never panic and never return a nil Result; every failure is
// reported through Result.Err.
type Fetcher interface {
	// Fetch issues one GET to url on behalf of source and returns its outcome.
	Fetch(ctx context.Context, source Source, url string) Result
}
