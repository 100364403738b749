package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"mapproxy/internal/config"
	"mapproxy/internal/coordinator"
	"mapproxy/internal/fetcher"
	"mapproxy/internal/testutil"
)

const (
	mapBody    = `{"me.angeschossen.lands":{"markers":{"m1":{"detail":"<i>Base</i>","position":{"x":5,"y":64,"z":5}}}}}`
	playerBody = `{"players":[{"name":"Alex"}]}`
)

func newTestRouter(t *testing.T, f fetcher.Fetcher, mutate func(*config.Config)) http.Handler {
	t.Helper()

	cfg := config.Default()
	cfg.PlayerURL = "http://upstream.test/players.json?"
	cfg.MapURL = "http://upstream.test/markers.json?"
	cfg.PrettyJSON = false
	if mutate != nil {
		mutate(cfg)
	}

	coord := coordinator.New(f, coordinator.Config{
		PlayerURL: cfg.PlayerURL,
		MapURL:    cfg.MapURL,
		ForwardID: cfg.ForwardID,
	}, nil)
	return NewRouter(coord, cfg, nil)
}

func do(t *testing.T, h http.Handler, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func healthyFetcher() *testutil.MockFetcher {
	return testutil.NewMockFetcher(map[fetcher.Source]string{
		fetcher.SourceMap:    mapBody,
		fetcher.SourcePlayer: playerBody,
	}, nil)
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(t, healthyFetcher(), nil)

	tests := []struct {
		target string
		want   string
	}{
		{"/map", `{"markers":{"m1":{"detail":"Base","positions":[{"x":5,"y":64,"z":5}]}}}`},
		{"/map/1", `{"markers":{"m1":{"detail":"Base","positions":[{"x":5,"y":64,"z":5}]}}}`},
		{"/player", `{"players":[{"name":"Alex"}]}`},
		{"/player/1", `{"players":[{"name":"Alex"}]}`},
		{"/data", `{"players":[{"name":"Alex"}],"map":{"markers":{"m1":{"detail":"Base","positions":[{"x":5,"y":64,"z":5}]}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, tt.target, nil)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
			}
			if rec.Body.String() != tt.want {
				t.Errorf("body = %s, want %s", rec.Body.String(), tt.want)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
				t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
			}
			if got := rec.Header().Get("Content-Type"); got != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", got)
			}
		})
	}
}

func TestRouter_ForwardID(t *testing.T) {
	f := healthyFetcher()
	router := newTestRouter(t, f, func(cfg *config.Config) { cfg.ForwardID = true })

	do(t, router, http.MethodGet, "/map/3", nil)
	do(t, router, http.MethodGet, "/player/9", nil)

	calls := f.Calls()
	want := []string{"http://upstream.test/markers.json?3", "http://upstream.test/players.json?9"}
	if len(calls) != len(want) || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("upstream calls = %v, want %v", calls, want)
	}
}

func TestRouter_UpstreamFailure(t *testing.T) {
	f := testutil.NewMockFetcher(
		map[fetcher.Source]string{fetcher.SourceMap: mapBody},
		map[fetcher.Source]*fetcher.FetchError{fetcher.SourcePlayer: fetcher.NewStatusError(http.StatusServiceUnavailable, "")},
	)
	router := newTestRouter(t, f, nil)

	rec := do(t, router, http.MethodGet, "/data", nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if len(body) != 1 {
		t.Errorf("body = %v, want only an error field", body)
	}
	if msg, _ := body["error"].(string); msg != "error fetching player data: status 503: Service Unavailable" {
		t.Errorf("error = %q", msg)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestRouter_Debug(t *testing.T) {
	f := healthyFetcher()
	router := newTestRouter(t, f, nil)

	rec := do(t, router, http.MethodGet, "/debug?probe=1", map[string]string{"X-Probe": "yes"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body coordinator.DebugPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body.Path != "/debug" || body.Request.Method != http.MethodGet || body.Request.URL != "/debug?probe=1" {
		t.Errorf("debug body = %+v", body)
	}
	if body.Request.Headers["x-probe"] != "yes" {
		t.Errorf("headers = %v, want x-probe echoed", body.Request.Headers)
	}
	if len(f.Calls()) != 0 {
		t.Errorf("debug made upstream calls: %v", f.Calls())
	}
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t, healthyFetcher(), nil)

	for _, target := range []string{"/", "/nope", "/map/1/extra"} {
		t.Run(target, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, target, nil)

			if rec.Code != http.StatusNotFound {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
			}
			if rec.Body.String() != `{"message":"Route not found"}` {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}

	rec := do(t, router, http.MethodPost, "/data", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("POST /data status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRouter_Options(t *testing.T) {
	router := newTestRouter(t, healthyFetcher(), nil)

	t.Run("plain", func(t *testing.T) {
		rec := do(t, router, http.MethodOptions, "/data", nil)

		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("body = %q, want empty", rec.Body.String())
		}
		if got := rec.Header().Get("Access-Control-Allow-Methods"); got == "" {
			t.Error("Access-Control-Allow-Methods missing")
		}
	})

	t.Run("browser preflight", func(t *testing.T) {
		rec := do(t, router, http.MethodOptions, "/map", map[string]string{
			"Origin":                        "http://viewer.test",
			"Access-Control-Request-Method": "GET",
		})

		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
		}
	})
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t, healthyFetcher(), nil)

	rec := do(t, router, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(t, healthyFetcher(), nil)
	do(t, router, http.MethodGet, "/map", nil)

	rec := do(t, router, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "mapproxy_http_request_duration_seconds") {
		t.Error("metrics output is missing the HTTP request histogram")
	}

	disabled := newTestRouter(t, healthyFetcher(), func(cfg *config.Config) { cfg.MetricsEnabled = false })
	if rec := do(t, disabled, http.MethodGet, "/metrics", nil); rec.Code != http.StatusNotFound {
		t.Errorf("disabled /metrics status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
