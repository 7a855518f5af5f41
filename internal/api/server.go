package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/extensions/locationgroup"
	"github.com/nerrad567/gray-logic-lifx/internal/extensions/tile"
	"github.com/nerrad567/gray-logic-lifx/internal/history"
	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-lifx/internal/light"
	"github.com/nerrad567/gray-logic-lifx/internal/service"
	"github.com/nerrad567/gray-logic-lifx/internal/transport"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultCommandTimeout bounds a command issued through the API.
const defaultCommandTimeout = 2 * time.Second

// LightSource is the part of *service.Service the API reads.
type LightSource interface {
	Lights() []*light.Light
	Light(id uint64) (*light.Light, bool)
	Stats() service.Stats
	IsConnected() bool
}

// LocationSource exposes the location/group tree.
type LocationSource interface {
	Locations() []locationgroup.Location
}

// TileSource exposes tracked tile chains.
type TileSource interface {
	Tiles() []tile.Tile
	Tile(id uint64) (tile.Tile, bool)
}

// HistoryReader reads the per-light change log.
type HistoryReader interface {
	GetHistory(ctx context.Context, lightID string, limit int) ([]history.Entry, error)
}

// BrokerSource reports the MQTT link and its traffic counters.
type BrokerSource interface {
	IsConnected() bool
	Stats() mqtt.Stats
}

// TransportSource reports UDP socket counters.
type TransportSource interface {
	Stats() transport.Stats
}

// DBStatsSource reports connection pool statistics.
type DBStatsSource interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Logger *logging.Logger

	// Lights is required.
	Lights LightSource

	Locations LocationSource
	Tiles     TileSource
	History   HistoryReader
	MQTT      BrokerSource
	Transport TransportSource
	DB        DBStatsSource

	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler

	// Hub, when set, is used instead of creating one in Start. The caller
	// registers it with the service so it sees light events.
	Hub *Hub

	CommandTimeout time.Duration
	Version        string
}

// Server is the HTTP API server for lifxd.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg            config.APIConfig
	wsCfg          config.WebSocketConfig
	logger         *logging.Logger
	lights         LightSource
	locations      LocationSource
	tiles          TileSource
	history        HistoryReader
	broker         BrokerSource
	transport      TransportSource
	db             DBStatsSource
	metrics        http.Handler
	commandTimeout time.Duration
	version        string
	startTime      time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	hub      *Hub
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Logger and Lights are required; everything else is optional
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, ErrLoggerRequired
	}
	if deps.Lights == nil {
		return nil, ErrLightsRequired
	}
	if deps.CommandTimeout <= 0 {
		deps.CommandTimeout = defaultCommandTimeout
	}

	return &Server{
		cfg:            deps.Config,
		wsCfg:          deps.WS,
		logger:         deps.Logger,
		lights:         deps.Lights,
		locations:      deps.Locations,
		tiles:          deps.Tiles,
		history:        deps.History,
		broker:         deps.MQTT,
		transport:      deps.Transport,
		db:             deps.DB,
		metrics:        deps.Metrics,
		hub:            deps.Hub,
		commandTimeout: deps.CommandTimeout,
		version:        deps.Version,
		startTime:      time.Now(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It binds the listener synchronously so a port conflict is reported to
// the caller, then serves in a background goroutine.
//
// Parameters:
//   - ctx: Parent context for the WebSocket hub
//
// Returns:
//   - error: If the listener cannot be bound
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	go s.hub.Run(srvCtx)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	srv := s.server
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", serveErr)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Hub returns the WebSocket hub. It is nil until Start unless one was
// injected through Deps.
func (s *Server) Hub() *Hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hub
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	cancel := s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return ErrNotStarted
	}
	return nil
}
