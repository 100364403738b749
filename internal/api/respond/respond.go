// Package respond maps aggregation results to HTTP responses.
//
// Building a Response is pure; only Write touches the http.ResponseWriter.
package respond

import (
	"net/http"

	"github.com/goccy/go-json"
)

// Response is an immutable HTTP response value.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// ErrorBody is the shape of a failed aggregation.
type ErrorBody struct {
	Error string `json:"error"`
}

// MessageBody is the shape of informational responses such as 404s.
type MessageBody struct {
	Message string `json:"message"`
}

const (
	allowMethods = "GET, OPTIONS"
	allowHeaders = "Content-Type, Authorization"
)

// baseHeaders are sent with every response. Live game state must never be
// served from an intermediary cache.
func baseHeaders() http.Header {
	h := http.Header{}
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	return h
}

// FromResult converts a payload or an error into a Response.
func FromResult(payload any, err error, pretty bool) Response {
	if err != nil {
		return JSON(http.StatusInternalServerError, ErrorBody{Error: err.Error()}, pretty)
	}
	return JSON(http.StatusOK, payload, pretty)
}

// NotFound is the response for an unmatched route.
func NotFound(pretty bool) Response {
	return JSON(http.StatusNotFound, MessageBody{Message: "Route not found"}, pretty)
}

// Preflight is the response to an OPTIONS request.
func Preflight() Response {
	h := baseHeaders()
	h.Set("Access-Control-Allow-Methods", allowMethods)
	h.Set("Access-Control-Allow-Headers", allowHeaders)
	return Response{Status: http.StatusNoContent, Headers: h}
}

// JSON serializes v with the standard headers. Pretty output uses two-space indentation.
func JSON(status int, v any, pretty bool) Response {
	var (
		body []byte
		err  error
	)
	if pretty {
		body, err = json.MarshalIndent(v, "", "  ")
	} else {
		body, err = json.Marshal(v)
	}
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"failed to encode response"}`)
	}

	h := baseHeaders()
	h.Set("Content-Type", "application/json")
	return Response{Status: status, Headers: h, Body: body}
}

// Write sends r to w.
func (r Response) Write(w http.ResponseWriter) {
	for name, values := range r.Headers {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.WriteHeader(r.Status)
	if len(r.Body) > 0 {
		w.Write(r.Body)
	}
}
