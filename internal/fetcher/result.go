package fetcher

import "github.com/goccy/go-json"

// Result represents the outcome of a fetch operation.
// It is sent through channels from worker goroutines to the coordinator,
// which consumes it immediately.
type Result struct {
	// Source is the upstream feed that was called
	Source Source

	// URL is the exact URL that was requested
	URL string

	// Body is the validated JSON document returned by the upstream
	Body json.RawMessage

	// Err is a *FetchError when the call failed; Body is then invalid.
	Err error
}

// OK reports whether the call produced a usable body.
func (r Result) OK() bool {
	return r.Err == nil
}

// Ok builds a successful Result.
func Ok(source Source, url string, body json.RawMessage) Result {
	return Result{Source: source, URL: url, Body: body}
}

// Failed builds a failed Result.
func Failed(source Source, url string, err *FetchError) Result {
	return Result{Source: source, URL: url, Err: err}
}
