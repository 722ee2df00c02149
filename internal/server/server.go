package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/narrator/internal/api"
	"github.com/jackzampolin/narrator/internal/config"
	"github.com/jackzampolin/narrator/internal/defra"
	"github.com/jackzampolin/narrator/internal/home"
	"github.com/jackzampolin/narrator/internal/jobs"
	"github.com/jackzampolin/narrator/internal/library"
	"github.com/jackzampolin/narrator/internal/metrics"
	"github.com/jackzampolin/narrator/internal/schema"
	"github.com/jackzampolin/narrator/internal/server/endpoints"
	"github.com/jackzampolin/narrator/internal/svcctx"
	"github.com/jackzampolin/narrator/internal/tts"
	"github.com/jackzampolin/narrator/internal/voices"
)

// Server is the main narrator HTTP server. It owns the storage backend,
// starting a DefraDB container on start when configured to and stopping it
// on shutdown, and runs the worker, health monitor and library watcher
// alongside HTTP.
type Server struct {
	httpServer   *http.Server
	defraManager *defra.DockerManager
	defraClient  *defra.Client
	configMgr    *config.Manager
	home         *home.Dir
	logger       *slog.Logger

	// services is set once initialization finishes
	services atomic.Pointer[svcctx.Services]
	pacer    *tts.Pacer
	watcher  *library.Watcher // nil without a library folder

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
	addr    string
}

// Config holds server configuration.
type Config struct {
	// Host overrides server.host from the config file
	Host string
	// Port overrides server.port from the config file
	Port string
	// ConfigManager provides configuration with hot-reload support (required)
	ConfigManager *config.Manager
	// Home holds the data, work and pid paths. Nil runs without a pid file
	// and with intermediates under the system temp dir.
	Home *home.Dir
	// DefraConfig overrides container settings derived from the config file
	DefraConfig defra.DockerConfig
	// SwaggerSpecPath points at a generated swagger.json
	SwaggerSpecPath string
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.ConfigManager == nil {
		return nil, errors.New("server requires a config manager")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	fileCfg := cfg.ConfigManager.Get()
	host, port := fileCfg.Server.Host, fileCfg.Server.Port
	if cfg.Host != "" {
		host = cfg.Host
	}
	if cfg.Port != "" {
		port = cfg.Port
	}
	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "8080"
	}

	s := &Server{
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
	}

	if fileCfg.Defra.Enabled && fileCfg.Defra.URL == "" {
		dc := DefraDockerConfig(fileCfg.Defra, cfg.Home, cfg.DefraConfig)
		defraManager, err := defra.NewDockerManager(dc)
		if err != nil {
			return nil, fmt.Errorf("failed to create defra manager: %w", err)
		}
		s.defraManager = defraManager
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{
		DefraManager:    s.defraManager,
		SwaggerSpecPath: cfg.SwaggerSpecPath,
	}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(host, port),
		Handler:      s.withRequestLog(s.withServices(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// DefraDockerConfig merges the config file section with explicit overrides.
func DefraDockerConfig(c config.DefraConfig, h *home.Dir, override defra.DockerConfig) defra.DockerConfig {
	dc := defra.DockerConfig{
		Image:    c.Image,
		HostPort: c.Port,
	}
	if c.ContainerName != "" && c.ContainerName != defra.DefaultContainerName {
		dc.ContainerName = c.ContainerName
	}
	if h != nil {
		dc.HomePath = h.Path()
		dc.DataPath = h.DataPath()
	}
	if override.ContainerName != "" {
		dc.ContainerName = override.ContainerName
	}
	if override.Image != "" {
		dc.Image = override.Image
	}
	if override.DataPath != "" {
		dc.DataPath = override.DataPath
	}
	if override.HostPort != "" {
		dc.HostPort = override.HostPort
	}
	if override.Labels != nil {
		dc.Labels = override.Labels
	}
	return dc
}

// Start binds the listener, initializes storage and services, and runs
// until ctx is cancelled or a component fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()
	defer s.setNotRunning()

	if s.home != nil {
		if err := s.home.AcquirePid(); err != nil {
			return err
		}
		defer s.home.ReleasePid()
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("starting HTTP server", "addr", s.addr)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down server")
		shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
		defer stop()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	svcs, err := s.initialize(gctx)
	if err != nil {
		cancel(err)
		_ = g.Wait()
		s.stopStorage()
		return err
	}
	s.services.Store(svcs)
	s.logger.Info("server ready", "addr", s.addr, "storage", storageName(svcs))

	g.Go(func() error {
		s.waitForBackend(gctx, svcs)
		return svcs.Worker.Run(gctx)
	})
	g.Go(func() error { return svcs.Health.Run(gctx) })
	if s.watcher != nil {
		g.Go(func() error { return s.watcher.Run(gctx) })
	}

	err = g.Wait()
	if err == nil && ctx.Err() != nil {
		s.logger.Info("shutdown signal received")
	}
	s.stopStorage()
	s.logger.Info("server stopped")
	return err
}

// initialize connects storage, applies stored settings and builds the
// services.
func (s *Server) initialize(ctx context.Context) (*svcctx.Services, error) {
	cfg := s.configMgr.Get()

	var st stores
	if cfg.Defra.Enabled {
		client, err := s.startDefra(ctx, cfg.Defra)
		if err != nil {
			return nil, err
		}
		s.defraClient = client
		st = stores{
			jobs:     jobs.NewDefraStore(client, s.logger),
			settings: config.NewStore(client),
			metrics:  metrics.NewDefraStore(client),
			voices:   voices.NewDefraStore(client),
		}
	} else {
		s.logger.Warn("DefraDB disabled, jobs will not survive a restart")
		st = stores{
			jobs:     jobs.NewMemoryStore(),
			settings: config.NewMemoryStore(),
			metrics:  metrics.NewMemoryStore(),
			voices:   voices.NewMemoryStore(),
		}
	}

	if err := s.configMgr.UseStore(ctx, st.settings, s.logger); err != nil {
		return nil, fmt.Errorf("failed to apply stored settings: %w", err)
	}

	svcs, err := s.buildServices(s.configMgr.Get(), st)
	if err != nil {
		return nil, err
	}

	s.configMgr.OnChange(func(c *config.Config) {
		svcs.Worker.Update(c.Worker.Settings())
		s.pacer.Update(c.TTS.PacerConfig())
		s.logger.Info("runtime settings applied",
			"paused", c.Worker.Paused,
			"quiet_hours_start", c.Worker.QuietHoursStart,
			"quiet_hours_end", c.Worker.QuietHoursEnd,
			"default_voice", c.TTS.DefaultVoice,
			"auto_convert", c.Library.AutoConvert)
	})
	return svcs, nil
}

func (s *Server) startDefra(ctx context.Context, c config.DefraConfig) (*defra.Client, error) {
	url := c.URL
	if s.defraManager != nil {
		// Validate any existing container matches our config
		if err := s.defraManager.ValidateExisting(ctx); err != nil {
			return nil, fmt.Errorf("existing DefraDB container incompatible: %w", err)
		}
		s.logger.Info("starting DefraDB", "container", s.defraManager.ContainerName())
		if err := s.defraManager.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start DefraDB: %w", err)
		}
		url = s.defraManager.URL()
	}

	client := defra.NewClient(url)
	if err := client.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("DefraDB health check failed: %w", err)
	}
	s.logger.Info("DefraDB is ready", "url", url)

	s.logger.Info("initializing schemas")
	if err := schema.Initialize(ctx, client, s.logger); err != nil {
		return nil, fmt.Errorf("schema initialization failed: %w", err)
	}
	return client, nil
}

// waitForBackend blocks until the TTS backend answers and has loaded its
// model, so the first chapter does not pay the cold start, then syncs the
// voice catalog. Failures are logged; synthesis retries on its own.
func (s *Server) waitForBackend(ctx context.Context, svcs *svcctx.Services) {
	if err := svcs.TTS.WaitUntilReady(ctx); err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("TTS backend not reachable, jobs will retry", "url", svcs.TTS.URL(), "error", err)
		}
		return
	}
	if _, err := svcs.Voices.Sync(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("voice sync failed", "error", err)
	}
	if err := svcs.TTS.Warmup(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("TTS warmup failed", "error", err)
	}
}

// stopStorage stops a DefraDB container this server started.
func (s *Server) stopStorage() {
	if s.defraManager == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("stopping DefraDB")
	if err := s.defraManager.Stop(ctx); err != nil {
		s.logger.Error("DefraDB stop error", "error", err)
	}
	if err := s.defraManager.Close(); err != nil {
		s.logger.Error("DefraDB manager close error", "error", err)
	}
}

func storageName(svcs *svcctx.Services) string {
	if svcs.DefraClient != nil {
		return "defradb"
	}
	return "memory"
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Services returns the initialized services, or nil while starting.
func (s *Server) Services() *svcctx.Services {
	return s.services.Load()
}

// Addr returns the server's listen address. After Start binds, this is the
// actual address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.addr != "" {
		return s.addr
	}
	return s.httpServer.Addr
}

// Endpoints returns the registered endpoints.
func (s *Server) Endpoints() []api.Endpoint {
	return s.endpointRegistry.Endpoints()
}
