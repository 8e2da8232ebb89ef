// Package app wires the voice server: it accepts carrier media streams,
// resolves the tenant, opens the recognition and synthesis legs, and runs
// call sessions under a registry with graceful drain. It also serves the
// operational surface: /stream/status, /healthz, and /metrics.
package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxdesk-ai/voxdesk/internal/booking"
	"github.com/voxdesk-ai/voxdesk/internal/call"
	"github.com/voxdesk-ai/voxdesk/internal/config"
	"github.com/voxdesk-ai/voxdesk/internal/engine"
	"github.com/voxdesk-ai/voxdesk/internal/observe"
	"github.com/voxdesk-ai/voxdesk/internal/tenant"
	"github.com/voxdesk-ai/voxdesk/internal/tools"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/llm"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/stt"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/tts"
)

// Providers groups the three external media and model legs.
type Providers struct {
	STT stt.Provider
	TTS tts.Provider
	LLM llm.Provider
}

// Sinks groups the optional side-effect collaborators. A nil sink disables
// the corresponding write.
type Sinks struct {
	Bookings booking.Sink
	SMS      booking.SMSSink
	CallLog  booking.CallLogSink
}

// Option is a functional option for [New].
type Option func(*Server)

// WithLogger sets the server logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics sets the metrics recorder. Defaults to the global provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server owns the shared call infrastructure and the HTTP surface.
type Server struct {
	cfg       *config.Config
	store     tenant.Store
	providers Providers
	sinks     Sinks

	resolver *tenant.Resolver
	engine   *engine.Engine
	registry *call.Registry
	metrics  *observe.Metrics
	logger   *slog.Logger
}

// New builds a Server over the given store and provider legs.
func New(cfg *config.Config, store tenant.Store, providers Providers, sinks Sinks, opts ...Option) (*Server, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("app: cfg must not be nil")
	case store == nil:
		return nil, errors.New("app: store must not be nil")
	case providers.STT == nil || providers.TTS == nil || providers.LLM == nil:
		return nil, errors.New("app: all three provider legs are required")
	}

	s := &Server{
		cfg:       cfg,
		store:     store,
		providers: providers,
		sinks:     sinks,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	router, err := tools.NewRouter(store,
		tools.WithDefaultTimeout(cfg.Tools.Timeout.Std()),
		tools.WithMetrics(s.metrics),
	)
	if err != nil {
		return nil, err
	}
	s.engine = engine.New(providers.LLM, router)
	s.resolver = tenant.NewResolver(store,
		tenant.WithTTL(cfg.Tenant.CacheTTL.Std()),
		tenant.WithToolDefaults(tenant.ToolPolicy{
			MaxCallsPerTurn: cfg.Tools.Budget,
			PerCallTimeout:  cfg.Tools.Timeout.Std(),
		}),
	)
	s.registry = call.NewRegistry(s.logger)

	return s, nil
}

// Registry exposes the session registry, for drain on shutdown.
func (s *Server) Registry() *call.Registry { return s.registry }

// Handler returns the server's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stream/ws", s.handleStream)
	mux.HandleFunc("GET /stream/status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"active_calls": s.registry.Active(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}
