package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/taxnovahq/taxnova-backend/pkg/config"
)

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func testRouter(deps Dependencies) http.Handler {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	return NewRouter(cfg, nil, deps, nil, nil, nil, nil, nil)
}

func TestRouterHealthEndpoints(t *testing.T) {
	srv := httptest.NewServer(testRouter(Dependencies{"db": okPinger{}}))
	defer srv.Close()

	for _, path := range []string{"/healthz", "/health/live", "/health/ready"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
		if env := resp.Header.Get("X-TaxNova-Env"); env != "test" {
			t.Errorf("GET %s env header = %q", path, env)
		}
	}
}

func TestRouterReadyDegradedWhenDependencyDown(t *testing.T) {
	srv := httptest.NewServer(testRouter(Dependencies{"db": okPinger{}, "redis": downPinger{}}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/ready")
	if err != nil {
		t.Fatalf("GET /health/ready: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}

	var body struct {
		Data struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Data.Status)
	}
	if body.Data.Checks["redis"] != "unreachable" || body.Data.Checks["db"] != "ok" {
		t.Errorf("checks = %+v", body.Data.Checks)
	}
}

func TestRouterMetricsExposed(t *testing.T) {
	srv := httptest.NewServer(testRouter(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRouterRegistersDomainRoutes(t *testing.T) {
	srv := httptest.NewServer(testRouter(nil))
	defer srv.Close()

	// Services are nil so wired routes answer 500 while unregistered
	// paths answer 404.
	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/v1/entities/0b06a33a-3f2b-4a61-9176-02d9f835c4b0/ledger/entries", http.StatusInternalServerError},
		{http.MethodGet, "/v1/entities/0b06a33a-3f2b-4a61-9176-02d9f835c4b0/integrity/verify", http.StatusInternalServerError},
		{http.MethodPost, "/v1/three-way-match", http.StatusInternalServerError},
		{http.MethodGet, "/v1/audits/0b06a33a-3f2b-4a61-9176-02d9f835c4b0", http.StatusInternalServerError},
		{http.MethodGet, "/v1/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		req, err := http.NewRequest(tc.method, srv.URL+tc.path, nil)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.path, resp.StatusCode, tc.want)
		}
	}
}
