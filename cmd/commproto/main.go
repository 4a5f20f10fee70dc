package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"commproto/internal/client"
	"commproto/internal/config"
	"commproto/internal/dispatch"
	"commproto/internal/handler"
	"commproto/internal/metrics"
	"commproto/internal/middleware"
	"commproto/internal/model"
	"commproto/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type cli struct {
	config.CLI `kong:"embed"`

	Serve serveCmd `kong:"cmd,default='1',help='Run the listener and fire the startup probe (default).'"`
	Probe probeCmd `kong:"cmd,help='Send the probe once and exit.'"`
	Send  sendCmd  `kong:"cmd,help='Dispatch one message as a UDP datagram.'"`
}

type serveCmd struct{}

type probeCmd struct{}

type sendCmd struct {
	Target string `kong:"required,enum='interface,server',help='Receiving subsystem: interface|server.'"`
	Level  string `kong:"default='info',enum='info,success,warn,fatal',help='Priority: info|success|warn|fatal.'"`
	Title  string `kong:"help='Message title.'"`
	Body   string `kong:"arg,help='Message body.'"`
	Addr   string `kong:"help='Destination host:port (overrides config).',env='DISPATCH_ADDR'"`
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("commproto"),
		kong.Description("POST acknowledgment listener, startup probe and datagram dispatcher."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	switch kctx.Command() {
	case "probe":
		kctx.FatalIfErrorf(runProbe(&c.CLI))
	case "send <body>":
		kctx.FatalIfErrorf(runSend(&c.CLI, &c.Send))
	default:
		runServe(&c.CLI)
	}
}

func runServe(cl *config.CLI) {
	fx.New(serveOptions(cl)...).Run()
}

// serveOptions is the dependency graph behind the serve command.
func serveOptions(cl *config.CLI) []fx.Option {
	return []fx.Option{
		fx.Provide(
			func() *config.CLI { return cl },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			newEcho,
			service.NewReceiver,
			client.NewProbeClient,
			service.NewProbeService,
			handler.NewAckHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(
			handler.RegisterRoutes,
			handler.RegisterMetrics,
			warnConfig,
			startServer,
			startProbe,
		),
	}
}

// runProbe sends the probe once. A failed probe is logged, not returned:
// only configuration errors make the command exit non-zero.
func runProbe(cl *config.CLI) error {
	cfg, err := config.Load(cl)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	svc, err := service.NewProbeService(client.NewProbeClient(cfg, logger, nil), cfg, logger, nil)
	if err != nil {
		return err
	}
	// Run logs and counts its own failures.
	_, _ = svc.Run(context.Background())
	return nil
}

func runSend(cl *config.CLI, cmd *sendCmd) error {
	cfg, err := config.Load(cl)
	if err != nil {
		return err
	}
	if cmd.Addr != "" {
		cfg.Dispatch.Addr = cmd.Addr
	}
	logger := newLogger(cfg)

	target, err := model.ParseTarget(cmd.Target)
	if err != nil {
		return err
	}
	level, err := model.ParseLevel(cmd.Level)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = dispatch.NewSender(cfg, logger, nil).Send(ctx, model.Message{
		Target: target,
		Level:  level,
		Title:  cmd.Title,
		Body:   cmd.Body,
	})
	return err
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Only header reads are bounded. Body reads and idle parked requests
	// are left to the client, matching the hang policy.
	e.Server.ReadHeaderTimeout = 10 * time.Second
	e.Server.IdleTimeout = 120 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(logger))
	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m))
	}
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Listener.BodyMaxBytes)))
	e.Use(middleware.SecurityHeaders())

	if cfg.Listener.RateLimit.Enabled {
		e.Use(middleware.RateLimit(cfg.Listener.RateLimit.RequestsPerSecond))
		logger.Info("rate limiter enabled", "rps", cfg.Listener.RateLimit.RequestsPerSecond)
	}

	return e
}

func warnConfig(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
	if !cfg.Probe.Disabled && !cfg.ProbeTargetsListener() {
		logger.Warn("probe target is not this listener; the startup probe will not reach it",
			"probe_target", cfg.Probe.TargetURL,
			"listener_addr", cfg.Listener.Addr(),
		)
	}
}

func startServer(lc fx.Lifecycle, e *echo.Echo, ack *handler.AckHandler, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Listener.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("listening", "addr", addr, "url", "http://"+addr)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down listener")
			ack.Release()
			return e.Shutdown(ctx)
		},
	})
}

// startProbe fires the probe once in the background. It does not wait for
// the listener to accept connections.
func startProbe(lc fx.Lifecycle, svc *service.ProbeService, cfg *config.Config, logger *slog.Logger) {
	if cfg.Probe.Disabled {
		logger.Info("startup probe disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer close(done)
				// Run logs and counts its own failures.
				_, _ = svc.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
