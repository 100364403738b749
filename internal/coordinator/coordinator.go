package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"mapproxy/internal/fetcher"
	"mapproxy/internal/marker"
	"mapproxy/internal/metrics"
)

// Kind selects what a request aggregates.
type Kind string

const (
	KindMap      Kind = "map"
	KindPlayer   Kind = "player"
	KindCombined Kind = "combined"
	KindDebug    Kind = "debug"
)

// ErrUnknownKind is returned by Handle for a kind it does not serve.
var ErrUnknownKind = errors.New("unknown request kind")

// Config is the immutable upstream configuration of a Coordinator.
type Config struct {
	PlayerURL string
	MapURL    string
	// ForwardID appends the route id to the upstream URL
	ForwardID bool
}

// Request describes one inbound aggregation request.
type Request struct {
	Kind Kind
	ID   string

	// Echoed by debug requests only
	Method  string
	Path    string
	URL     string
	Headers http.Header
}

// MapPayload is the body of a map response.
type MapPayload struct {
	Markers marker.Set `json:"markers"`
}

// PlayerPayload is the body of a player response.
// Players is passed through from the upstream without interpretation.
type PlayerPayload struct {
	Players json.RawMessage `json:"players"`
}

// CombinedPayload is the body of a combined response.
type CombinedPayload struct {
	Players json.RawMessage `json:"players"`
	Map     MapPayload      `json:"map"`
}

// DebugPayload echoes the inbound request.
type DebugPayload struct {
	Message string       `json:"message"`
	Path    string       `json:"path"`
	Request DebugRequest `json:"request"`
}

// DebugRequest is the echoed part of a debug request.
type DebugRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

var emptyPlayers = json.RawMessage(`[]`)

// AggregateError reports which upstream made an aggregation fail.
type AggregateError struct {
	Source fetcher.Source
	Err    error
}

// Error implements the error interface
func (e *AggregateError) Error() string {
	return fmt.Sprintf("error fetching %s data: %v", e.Source, e.Err)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *AggregateError) Unwrap() error {
	return e.Err
}

// Coordinator fetches upstream documents and assembles response payloads.
// It holds no per-request state and is safe for concurrent use.
type Coordinator struct {
	fetcher fetcher.Fetcher
	cfg     Config
	logger  *slog.Logger
}

// New creates a new Coordinator
func New(f fetcher.Fetcher, cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		fetcher: f,
		cfg:     cfg,
		logger:  logger,
	}
}

// Handle dispatches req to the aggregation for its kind.
func (c *Coordinator) Handle(ctx context.Context, req Request) (any, error) {
	switch req.Kind {
	case KindMap:
		return c.Map(ctx, req.ID)
	case KindPlayer:
		return c.Players(ctx, req.ID)
	case KindCombined:
		return c.Combined(ctx)
	case KindDebug:
		return c.Debug(req), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
	}
}

// Map fetches and normalizes the marker feed.
func (c *Coordinator) Map(ctx context.Context, id string) (*MapPayload, error) {
	res := c.fetcher.Fetch(ctx, fetcher.SourceMap, c.upstreamURL(c.cfg.MapURL, id))
	if !res.OK() {
		return nil, &AggregateError{Source: fetcher.SourceMap, Err: res.Err}
	}
	return c.mapPayload(res)
}

// Players fetches the live player feed.
func (c *Coordinator) Players(ctx context.Context, id string) (*PlayerPayload, error) {
	res := c.fetcher.Fetch(ctx, fetcher.SourcePlayer, c.upstreamURL(c.cfg.PlayerURL, id))
	if !res.OK() {
		return nil, &AggregateError{Source: fetcher.SourcePlayer, Err: res.Err}
	}
	return &PlayerPayload{Players: c.players(res)}, nil
}

// Combined fetches both feeds concurrently. Either failure fails the whole
// request and cancels the call still in flight.
func (c *Coordinator) Combined(ctx context.Context) (*CombinedPayload, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	targets := map[fetcher.Source]string{
		fetcher.SourcePlayer: c.cfg.PlayerURL,
		fetcher.SourceMap:    c.cfg.MapURL,
	}

	resultChan := make(chan fetcher.Result, len(targets))
	var wg sync.WaitGroup

	for source, target := range targets {
		wg.Add(1)
		go func(source fetcher.Source, target string) {
			defer wg.Done()
			resultChan <- c.fetcher.Fetch(ctx, source, target)
		}(source, target)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make(map[fetcher.Source]fetcher.Result, len(targets))
	var failure *AggregateError

	for res := range resultChan {
		if !res.OK() && failure == nil {
			failure = &AggregateError{Source: res.Source, Err: res.Err}
			cancel()
		}
		results[res.Source] = res
	}

	if failure != nil {
		return nil, failure
	}

	m, err := c.mapPayload(results[fetcher.SourceMap])
	if err != nil {
		return nil, err
	}

	return &CombinedPayload{
		Players: c.players(results[fetcher.SourcePlayer]),
		Map:     *m,
	}, nil
}

// Debug echoes req without any upstream I/O.
func (c *Coordinator) Debug(req Request) *DebugPayload {
	headers := make(map[string]string, len(req.Headers))
	for name, values := range req.Headers {
		headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}

	return &DebugPayload{
		Message: "Debug endpoint",
		Path:    req.Path,
		Request: DebugRequest{
			Method:  req.Method,
			URL:     req.URL,
			Headers: headers,
		},
	}
}

func (c *Coordinator) mapPayload(res fetcher.Result) (*MapPayload, error) {
	set, stats, err := marker.Decode(res.Body)
	if err != nil {
		return nil, &AggregateError{
			Source: fetcher.SourceMap,
			Err:    fetcher.NewMalformedBodyError("unexpected map payload", err),
		}
	}

	if stats.Skipped > 0 {
		metrics.MarkersSkipped.Add(float64(stats.Skipped))
		c.logger.Warn("skipped malformed markers", "url", res.URL, "skipped", stats.Skipped, "total", stats.Total)
	}
	c.logger.Debug("normalized markers",
		"url", res.URL,
		"total", stats.Total,
		"emitted", stats.Emitted,
		"dropped", stats.Dropped)

	return &MapPayload{Markers: set}, nil
}

// players extracts the players field, defaulting to an empty array.
func (c *Coordinator) players(res fetcher.Result) json.RawMessage {
	var body struct {
		Players json.RawMessage `json:"players"`
	}
	if err := json.Unmarshal(res.Body, &body); err != nil {
		c.logger.Warn("player payload is not an object", "url", res.URL, "error", err)
		return emptyPlayers
	}
	if len(body.Players) == 0 || string(body.Players) == "null" {
		return emptyPlayers
	}
	return body.Players
}

// upstreamURL appends id to base when id forwarding is enabled.
func (c *Coordinator) upstreamURL(base, id string) string {
	if !c.cfg.ForwardID || id == "" {
		return base
	}
	return base + url.QueryEscape(id)
}
