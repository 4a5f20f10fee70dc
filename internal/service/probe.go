package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"commproto/internal/client"
	"commproto/internal/config"
	"commproto/internal/metrics"
	"commproto/internal/model"
)

// ErrInvalidJSON is returned when the probe target answers with a body that
// does not parse as JSON.
var ErrInvalidJSON = errors.New("probe response is not valid JSON")

// ProbeErrorMessage prefixes every logged probe failure.
const ProbeErrorMessage = "Error: probe request failed"

// probeContentType is the header sent with the probe payload.
const probeContentType = "application/json; charset=UTF-8"

// maxProbeResponseBytes bounds how much of the response is decoded.
const maxProbeResponseBytes = 1 << 20

// Probe outcomes used as metric labels.
const (
	outcomeOK          = "ok"
	outcomeError       = "error"
	outcomeInvalidJSON = "invalid_json"
)

// ProbeService sends the fixed probe payload to the configured target.
type ProbeService struct {
	client  *client.ProbeClient
	target  string
	payload []byte
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProbeService creates a ProbeService targeting cfg.Probe.TargetURL.
// The metrics parameter is optional; pass nil to disable recording.
func NewProbeService(c *client.ProbeClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*ProbeService, error) {
	payload, err := json.Marshal(model.FixedProbePayload)
	if err != nil {
		return nil, fmt.Errorf("encode probe payload: %w", err)
	}
	return &ProbeService{
		client:  c,
		target:  cfg.Probe.TargetURL,
		payload: payload,
		logger:  logger.With("component", "probe"),
		metrics: m,
	}, nil
}

// Target returns the URL the probe posts to.
func (s *ProbeService) Target() string {
	return s.target
}

// Run posts the payload once and returns the decoded JSON response.
// Any failure is logged with ProbeErrorMessage and returned; the probe never
// retries and never panics.
func (s *ProbeService) Run(ctx context.Context) (any, error) {
	v, err := s.run(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, ProbeErrorMessage,
			"err", err,
			"target", s.target,
		)
		if errors.Is(err, ErrInvalidJSON) {
			s.record(outcomeInvalidJSON)
		} else {
			s.record(outcomeError)
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "probe response", "target", s.target, "json", v)
	s.record(outcomeOK)
	return v, nil
}

func (s *ProbeService) run(ctx context.Context) (any, error) {
	header := http.Header{}
	header.Set("Content-Type", probeContentType)

	resp, err := s.client.Post(ctx, s.target, header, bytes.NewReader(s.payload))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	s.logger.DebugContext(ctx, "probe status", "status", resp.StatusCode)

	var v any
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxProbeResponseBytes))
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	// The whole body must be one JSON value; only trailing whitespace is allowed.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrInvalidJSON)
	}
	return v, nil
}

func (s *ProbeService) record(outcome string) {
	if s.metrics != nil {
		s.metrics.ProbeResults.WithLabelValues(outcome).Inc()
	}
}
