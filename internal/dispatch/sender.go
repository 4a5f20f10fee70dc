// Package dispatch sends typed messages to a target subsystem as single UDP datagrams.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"commproto/internal/config"
	"commproto/internal/metrics"
	"commproto/internal/model"
)

// MaxDatagramSize is the largest UDP payload over IPv4.
const MaxDatagramSize = 65507

// ErrMessageTooLarge is returned when an encoded message does not fit in one datagram.
var ErrMessageTooLarge = errors.New("message exceeds datagram size limit")

// Sender writes messages to the configured dispatch address.
type Sender struct {
	addr    string
	dialer  net.Dialer
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewSender creates a Sender for cfg.Dispatch.Addr.
// The metrics parameter is optional; pass nil to disable recording.
func NewSender(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Sender {
	return &Sender{
		addr:    cfg.Dispatch.Addr,
		logger:  logger.With("component", "dispatch"),
		metrics: m,
		now:     time.Now,
	}
}

// Send stamps msg with an id (when empty) and the send time, encodes it as
// JSON and writes it as one datagram. A socket is opened per call and closed
// before returning. The stamped message is returned.
func (s *Sender) Send(ctx context.Context, msg model.Message) (model.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.SentAt = s.now().UTC()

	data, err := json.Marshal(msg)
	if err != nil {
		s.record(msg, "error")
		return msg, fmt.Errorf("encode message: %w", err)
	}
	if len(data) > MaxDatagramSize {
		s.record(msg, "too_large")
		return msg, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(data))
	}

	conn, err := s.dialer.DialContext(ctx, "udp", s.addr)
	if err != nil {
		s.record(msg, "error")
		return msg, fmt.Errorf("dial %s: %w", s.addr, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(data); err != nil {
		s.record(msg, "error")
		return msg, fmt.Errorf("write datagram to %s: %w", s.addr, err)
	}

	s.logger.InfoContext(ctx, "message dispatched",
		"id", msg.ID,
		"target", msg.Target,
		"level", msg.Level,
		"addr", s.addr,
		"bytes", len(data),
	)
	s.record(msg, "sent")
	return msg, nil
}

func (s *Sender) record(msg model.Message, result string) {
	if s.metrics != nil {
		s.metrics.DispatchTotal.WithLabelValues(string(msg.Target), string(msg.Level), result).Inc()
	}
}
