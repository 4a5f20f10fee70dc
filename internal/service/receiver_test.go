package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"testing/iotest"

	"commproto/internal/config"
	"commproto/internal/metrics"
)

func newTestReceiver(chunk int, buf *bytes.Buffer, m *metrics.Metrics) *Receiver {
	cfg := &config.Config{Listener: config.ListenerConfig{ReadChunkBytes: chunk}}
	var w io.Writer = io.Discard
	if buf != nil {
		w = buf
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewReceiver(cfg, logger, m)
}

func TestReceiver_Receive(t *testing.T) {
	tests := []struct {
		name  string
		chunk int
		body  string
	}{
		{"empty body", 4, ""},
		{"single chunk", 64, "hello"},
		{"many chunks", 3, `{"name":"name2","body":"body2"}`},
		{"exact multiple", 5, "abcdefghij"},
		{"multibyte split across chunks", 2, "héllo wörld"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReceiver(tt.chunk, nil, nil)
			got, err := r.Receive(context.Background(), strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("Receive() error = %v", err)
			}
			if got != tt.body {
				t.Errorf("Receive() = %q, want %q", got, tt.body)
			}
		})
	}
}

func TestReceiver_LogsPartialAccumulation(t *testing.T) {
	var buf bytes.Buffer
	r := newTestReceiver(64, &buf, nil)

	// OneByteReader forces one chunk per byte regardless of buffer size.
	got, err := r.Receive(context.Background(), iotest.OneByteReader(strings.NewReader("abc")))
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if got != "abc" {
		t.Fatalf("Receive() = %q, want %q", got, "abc")
	}

	out := buf.String()
	for _, want := range []string{
		"body=a chunk_bytes=1",
		"body=ab chunk_bytes=1",
		"body=abc chunk_bytes=1",
		"body=abc bytes=3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "partial body"); n != 3 {
		t.Errorf("partial body lines = %d, want 3", n)
	}
}

func TestReceiver_PartialBodyVisibleAtInfo(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{Listener: config.ListenerConfig{ReadChunkBytes: 2}}
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	r := NewReceiver(cfg, logger, nil)

	if _, err := r.Receive(context.Background(), strings.NewReader("hello")); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"body=he ", "body=hell ", "body=hello chunk_bytes=1", "body=hello bytes=5"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "partial body"); n != 3 {
		t.Errorf("partial body lines = %d, want 3", n)
	}
}

func TestReceiver_ReadError(t *testing.T) {
	r := newTestReceiver(2, nil, nil)
	boom := errors.New("connection reset")
	src := io.MultiReader(strings.NewReader("par"), iotest.ErrReader(boom))

	got, err := r.Receive(context.Background(), src)
	if !errors.Is(err, boom) {
		t.Fatalf("Receive() error = %v, want %v", err, boom)
	}
	if got != "par" {
		t.Errorf("partial = %q, want %q", got, "par")
	}
}

func TestReceiver_RecordsMetrics(t *testing.T) {
	m := metrics.New()
	r := newTestReceiver(8, nil, m)

	for _, body := range []string{"hello", ""} {
		if _, err := r.Receive(context.Background(), strings.NewReader(body)); err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == "commproto_acks_total" {
			if v := f.GetMetric()[0].GetCounter().GetValue(); v != 2 {
				t.Errorf("acks_total = %v, want 2", v)
			}
			return
		}
	}
	t.Error("expected commproto_acks_total in gathered metrics")
}
