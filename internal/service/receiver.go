// Package service implements body accumulation for the listener and the startup probe.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"commproto/internal/config"
	"commproto/internal/metrics"
)

// Receiver accumulates request bodies chunk by chunk.
type Receiver struct {
	chunkSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewReceiver creates a Receiver reading cfg.Listener.ReadChunkBytes at a time.
// The metrics parameter is optional; pass nil to disable recording.
func NewReceiver(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Receiver {
	size := cfg.Listener.ReadChunkBytes
	if size <= 0 {
		size = 32 * 1024
	}
	return &Receiver{
		chunkSize: size,
		logger:    logger.With("component", "receiver"),
		metrics:   m,
	}
}

// Receive reads r until EOF and returns the accumulated body. After every
// chunk the accumulation so far is logged; the complete body is logged once
// at EOF. On a read error the bytes received so far are returned together
// with the wrapped error.
func (s *Receiver) Receive(ctx context.Context, r io.Reader) (string, error) {
	var acc strings.Builder
	buf := make([]byte, s.chunkSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			acc.Write(buf[:n])
			s.logger.InfoContext(ctx, "partial body",
				"body", acc.String(),
				"chunk_bytes", n,
			)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return acc.String(), fmt.Errorf("read body: %w", err)
		}
	}

	body := acc.String()
	s.logger.InfoContext(ctx, "body received",
		"body", body,
		"bytes", len(body),
	)

	if s.metrics != nil {
		s.metrics.AcksTotal.Inc()
		s.metrics.AckBodyBytes.Observe(float64(len(body)))
	}

	return body, nil
}
