package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logx "deadlinebot/pkg/logx"

	"github.com/prometheus/client_golang/prometheus"
)

func get(t *testing.T, h http.Handler, path, bearer string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code, rec.Body.String()
}

func TestHandlerRoutes(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_hits_total", Help: "hits"})
	reg.MustRegister(c)
	c.Inc()

	healthy := true
	s := New(Config{}, Probes{
		Gatherer: reg,
		Health: func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("store down")
		},
		Status: func() any { return map[string]int{"owners": 3} },
	}, logx.Nop())
	h := s.Handler()

	if code, body := get(t, h, "/metrics", ""); code != http.StatusOK || !strings.Contains(body, "test_hits_total 1") {
		t.Fatalf("/metrics = %d %q", code, body)
	}
	if code, body := get(t, h, "/healthz", ""); code != http.StatusOK || body != "ok" {
		t.Fatalf("/healthz = %d %q", code, body)
	}
	if code, body := get(t, h, "/status", ""); code != http.StatusOK || !strings.Contains(body, `"owners": 3`) {
		t.Fatalf("/status = %d %q", code, body)
	}
	if code, _ := get(t, h, "/debug/pprof/", ""); code != http.StatusNotFound {
		t.Fatalf("pprof must be off by default, got %d", code)
	}

	healthy = false
	if code, body := get(t, h, "/healthz", ""); code != http.StatusServiceUnavailable || !strings.Contains(body, "store down") {
		t.Fatalf("/healthz unhealthy = %d %q", code, body)
	}
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()
	s := New(Config{Token: "s3cret", Pprof: true}, Probes{}, logx.Nop())
	h := s.Handler()
	if code, _ := get(t, h, "/healthz", ""); code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", code)
	}
	if code, _ := get(t, h, "/healthz", "wrong"); code != http.StatusUnauthorized {
		t.Fatalf("wrong token = %d", code)
	}
	if code, _ := get(t, h, "/healthz", "s3cret"); code != http.StatusOK {
		t.Fatalf("bearer = %d", code)
	}
	if code, _ := get(t, h, "/healthz?token=s3cret", ""); code != http.StatusOK {
		t.Fatalf("query token = %d", code)
	}
	if code, _ := get(t, h, "/debug/pprof/cmdline", "s3cret"); code != http.StatusOK {
		t.Fatalf("pprof = %d", code)
	}
}

func TestStartRefusesInsecureBind(t *testing.T) {
	t.Parallel()
	s := New(Config{Addr: "0.0.0.0:0"}, Probes{}, logx.Nop())
	if err := s.Start(context.Background()); !errors.Is(err, ErrInsecureBind) {
		t.Fatalf("Start = %v", err)
	}
}

func TestStartServesAndStops(t *testing.T) {
	t.Parallel()
	s := New(Config{Addr: "127.0.0.1:0"}, Probes{}, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("body = %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"127.0.0.1:9090": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":9090":          false,
		"0.0.0.0:9090":   false,
		"10.0.0.5:9090":  false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
