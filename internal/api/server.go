package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/laurabot-hal/internal/alert"
	"github.com/nerrad567/laurabot-hal/internal/audit"
	"github.com/nerrad567/laurabot-hal/internal/device"
	"github.com/nerrad567/laurabot-hal/internal/gesture"
	"github.com/nerrad567/laurabot-hal/internal/hal"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/config"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/logging"
	"github.com/nerrad567/laurabot-hal/internal/metrics"
	"github.com/nerrad567/laurabot-hal/internal/probe"
	"github.com/nerrad567/laurabot-hal/internal/simulation"
	"github.com/nerrad567/laurabot-hal/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Prober runs and reports capability probes.
type Prober interface {
	Probe(ctx context.Context) (probe.Report, error)
	LastReport() (probe.Report, bool)
}

// CommandRouter executes hardware commands with tier fallback.
type CommandRouter interface {
	Speak(ctx context.Context, text string) hal.Result[string]
	Listen(ctx context.Context, timeout time.Duration) hal.Result[string]
	MoveActuator(ctx context.Context, actuatorID string, position int) hal.Result[int]
	MovePose(ctx context.Context, pose string) hal.Result[map[string]int]
	RecognizeGesture(ctx context.Context) hal.Result[gesture.Event]
	Poses() []string
}

// FailureRecorder records failure window changes made through the API.
type FailureRecorder interface {
	RecordFailure(target string, until time.Time, source string)
}

// TelemetryStats reports telemetry pipeline counters.
type TelemetryStats interface {
	Stats() telemetry.Stats
}

// ConnectionChecker reports whether an infrastructure client is connected.
type ConnectionChecker interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Registry  *device.Registry
	Router    CommandRouter
	Substrate *simulation.Substrate
	Evaluator *alert.Evaluator

	// Optional.
	Prober      Prober
	AuditRepo   audit.Repository
	Failures    FailureRecorder
	Metrics     *metrics.Collector
	Telemetry   TelemetryStats
	MQTT        ConnectionChecker
	InfluxDB    ConnectionChecker
	ExternalHub *Hub // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the diagnostics HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	registry  *device.Registry
	router    CommandRouter
	substrate *simulation.Substrate
	evaluator *alert.Evaluator
	prober    Prober
	auditRepo audit.Repository
	failures  FailureRecorder
	metrics   *metrics.Collector
	telemetry TelemetryStats
	mqtt      ConnectionChecker
	influx    ConnectionChecker
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, registry, router, substrate, evaluator)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Router == nil {
		return nil, fmt.Errorf("command router is required")
	}
	if deps.Substrate == nil {
		return nil, fmt.Errorf("simulation substrate is required")
	}
	if deps.Evaluator == nil {
		return nil, fmt.Errorf("alert evaluator is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		registry:  deps.Registry,
		router:    deps.Router,
		substrate: deps.Substrate,
		evaluator: deps.Evaluator,
		prober:    deps.Prober,
		auditRepo: deps.AuditRepo,
		failures:  deps.Failures,
		metrics:   deps.Metrics,
		telemetry: deps.Telemetry,
		mqtt:      deps.MQTT,
		influx:    deps.InfluxDB,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       deps.ExternalHub,
	}, nil
}

// Hub returns the WebSocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub (unless one was injected), builds the router
// and launches the HTTP listener in a background goroutine. The server can
// be stopped with Close().
//
// Parameters:
//   - ctx: Parent context for background goroutines
//
// Returns:
//   - error: Always nil; listener errors are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
