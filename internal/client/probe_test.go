package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"commproto/internal/config"
	"commproto/internal/metrics"
)

func testConfig(timeout int) *config.Config {
	return &config.Config{
		Probe: config.ProbeConfig{
			TimeoutSeconds:  timeout,
			IdleConnections: 2,
		},
	}
}

func TestProbeClient_Post(t *testing.T) {
	var gotMethod, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	c := NewProbeClient(testConfig(10), logger, m)

	header := http.Header{}
	header.Set("Content-Type", "application/json; charset=UTF-8")
	resp, err := c.Post(context.Background(), srv.URL, header, strings.NewReader(`{"a":1}`))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotType != "application/json; charset=UTF-8" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if gotBody != `{"a":1}` {
		t.Errorf("body = %q, want %q", gotBody, `{"a":1}`)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "commproto_probe_duration_seconds" {
			for _, metric := range f.GetMetric() {
				if metric.GetHistogram().GetSampleCount() == 1 {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected one commproto_probe_duration_seconds sample")
	}
}

func TestProbeClient_Post_ConnectionRefused(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewProbeClient(testConfig(1), logger, nil)

	_, err := c.Post(context.Background(), "http://127.0.0.1:1/", http.Header{}, http.NoBody)
	if err == nil {
		t.Fatal("Post() expected error for unreachable host, got nil")
	}
	if !strings.HasPrefix(err.Error(), "probe request:") {
		t.Errorf("error = %q, want probe request prefix", err)
	}
}

func TestProbeClient_Post_BadURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewProbeClient(testConfig(1), logger, nil)

	_, err := c.Post(context.Background(), "http://[::1", http.Header{}, http.NoBody)
	if err == nil || !strings.Contains(err.Error(), "build probe request") {
		t.Fatalf("Post() error = %v, want build probe request error", err)
	}
}

func TestProbeClient_Post_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewProbeClient(testConfig(30), logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Post(ctx, srv.URL, http.Header{}, http.NoBody)
	if err == nil {
		t.Fatal("Post() expected error for canceled context, got nil")
	}
}
