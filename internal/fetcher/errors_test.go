package fetcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyTransportError(t *testing.T) {
	status := NewStatusError(503, "")

	tests := []struct {
		name     string
		err      error
		wantType ErrorType
	}{
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), ErrorTypeTimeout},
		{"net timeout", timeoutErr{}, ErrorTypeTimeout},
		{"refused", errors.New("dial tcp: connection refused"), ErrorTypeNetwork},
		{"cancelled", context.Canceled, ErrorTypeNetwork},
		{"already classified", status, ErrorTypeHTTPStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyTransportError(tt.err)
			if got.Type != tt.wantType {
				t.Errorf("ClassifyTransportError() type = %q, want %q", got.Type, tt.wantType)
			}
		})
	}

	if got := ClassifyTransportError(status); got != status {
		t.Error("ClassifyTransportError() should return an existing *FetchError unchanged")
	}
}

func TestFetchError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *FetchError
		want string
	}{
		{"status", NewStatusError(404, ""), "status 404: Not Found"},
		{"status with body", NewStatusError(500, "boom"), "status 500: Internal Server Error: boom"},
		{"unknown status", NewStatusError(599, ""), "status 599: unexpected status"},
		{"network", NewNetworkError(errors.New("connection refused")), "upstream unreachable: connection refused"},
		{"malformed", NewMalformedBodyError("upstream body is not valid JSON", nil), "upstream body is not valid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetchError_Unwrap(t *testing.T) {
	err := NewTimeoutError(context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("errors.Is(timeout, DeadlineExceeded) = false, want true")
	}
	if !err.Unreachable() {
		t.Error("Unreachable() = false for timeout")
	}
}

func TestCountsAsSuccess(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"cancelled by caller", context.Canceled, true},
		{"not found", NewStatusError(404, ""), true},
		{"malformed", NewMalformedBodyError("bad", nil), true},
		{"server error", NewStatusError(502, ""), false},
		{"unreachable", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := countsAsSuccess(tt.err); got != tt.want {
				t.Errorf("countsAsSuccess() = %v, want %v", got, tt.want)
			}
		})
	}
}
