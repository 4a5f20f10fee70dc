package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"

	"commproto/internal/config"
	"commproto/internal/metrics"
	"commproto/internal/model"
	"commproto/internal/service"
)

// AckHandler accepts POST bodies on any path and answers with the fixed ack.
type AckHandler struct {
	receiver *service.Receiver
	nonPost  string
	ack      []byte
	logger   *slog.Logger
	metrics  *metrics.Metrics

	release     chan struct{}
	releaseOnce sync.Once
}

// NewAckHandler creates an AckHandler using cfg.Listener.NonPost for non-POST requests.
// The metrics parameter is optional.
func NewAckHandler(recv *service.Receiver, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*AckHandler, error) {
	ack, err := json.Marshal(model.FixedAck)
	if err != nil {
		return nil, err
	}
	return &AckHandler{
		receiver: recv,
		nonPost:  cfg.Listener.NonPost,
		ack:      ack,
		logger:   logger.With("component", "ack_handler"),
		metrics:  m,
		release:  make(chan struct{}),
	}, nil
}

// Handle accumulates the POST body and writes the fixed acknowledgment.
// The response never depends on the body.
func (h *AckHandler) Handle(c echo.Context) error {
	req := c.Request()
	if req.Method != http.MethodPost {
		return h.handleNonPost(c)
	}

	if _, err := h.receiver.Receive(req.Context(), req.Body); err != nil {
		// BodyLimit reports oversized bodies as an *echo.HTTPError from Read.
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		h.logger.Warn("reading request body",
			"err", err,
			"path", req.URL.Path,
		)
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable request body")
	}

	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, h.ack)
}

// handleNonPost applies the configured policy. Under "hang" nothing is
// written: the request stays open until the client goes away or Release is
// called.
func (h *AckHandler) handleNonPost(c echo.Context) error {
	if h.nonPost == config.NonPostReject {
		return echo.NewHTTPError(http.StatusMethodNotAllowed, "method not allowed")
	}

	req := c.Request()
	h.logger.Debug("holding non-POST request open",
		"method", req.Method,
		"path", req.URL.Path,
	)
	if h.metrics != nil {
		h.metrics.ParkedNonPost.Inc()
		defer h.metrics.ParkedNonPost.Dec()
	}

	select {
	case <-req.Context().Done():
		return nil
	case <-h.release:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "listener shutting down")
	}
}

// Release frees every request parked by the hang policy and makes later
// non-POST requests fail fast. Safe to call more than once.
func (h *AckHandler) Release() {
	h.releaseOnce.Do(func() { close(h.release) })
}
