package handler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"commproto/internal/config"
	"commproto/internal/metrics"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	ack := newTestAckHandler(t, config.NonPostReject, nil)
	health := NewHealthHandler(&config.Config{}, "test")

	e := echo.New()
	RegisterRoutes(e, ack, health)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"GET /status", http.MethodGet, "/status", http.StatusOK},
		{"POST /", http.MethodPost, "/", http.StatusOK},
		{"POST nested path", http.MethodPost, "/robot/telemetry", http.StatusOK},
		{"GET ack path rejected", http.MethodGet, "/robot", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader("payload"))
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterMetrics(t *testing.T) {
	m := metrics.New()
	m.AcksTotal.Inc()

	t.Run("enabled", func(t *testing.T) {
		e := echo.New()
		RegisterMetrics(e, &config.Config{Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"}}, m)

		req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		body, _ := io.ReadAll(rec.Body)
		if !strings.Contains(string(body), "commproto_acks_total 1") {
			t.Errorf("metrics output missing commproto_acks_total 1")
		}
	})

	t.Run("disabled", func(t *testing.T) {
		e := echo.New()
		RegisterMetrics(e, &config.Config{Metrics: config.MetricsConfig{Path: "/metrics"}}, m)

		req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})
}
