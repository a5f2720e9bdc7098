package operator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cardscan/internal/catalog"
	"cardscan/internal/config"
	"cardscan/internal/identify"
	"cardscan/internal/logging"
	"cardscan/internal/search"
	"cardscan/internal/services"
)

const (
	defaultSessionTTL = 30 * time.Minute
	maxUploadBytes    = 32 << 20
)

// Searcher runs a catalog name search.
type Searcher interface {
	Search(ctx context.Context, name, setName string) (search.Result, error)
}

// Deps are the components behind the API. Builder and Search may be nil; the
// matching routes then answer 503.
type Deps struct {
	Engine   *identify.Engine
	Registry *identify.Registry
	Catalog  *catalog.Store
	Builder  *catalog.Builder
	Source   catalog.Source
	Search   Searcher
	// SessionTTL bounds how long sessions stay addressable.
	SessionTTL time.Duration
	Now        func() time.Time
}

// Server is the operator HTTP API.
type Server struct {
	bind   string
	token  string
	logger *slog.Logger
	deps   Deps
	hub    *hub
	builds *buildRunner

	mu       sync.Mutex
	baseCtx  context.Context
	listener net.Listener
	server   *http.Server
}

// New validates deps and builds the router.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "operator", "new", "Config is required", nil)
	}
	if deps.Engine == nil {
		return nil, services.Wrap(services.ErrConfiguration, "operator", "new", "Identification engine is required", nil)
	}
	if deps.Registry == nil {
		deps.Registry = identify.NewRegistry()
	}
	if deps.SessionTTL <= 0 {
		deps.SessionTTL = defaultSessionTTL
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger = logging.NewComponentLogger(logger, "operator")
	s := &Server{
		bind:    strings.TrimSpace(cfg.Paths.APIBind),
		token:   cfg.Paths.APIToken,
		logger:  logger,
		deps:    deps,
		hub:     newHub(logger),
		baseCtx: context.Background(),
	}
	if deps.Builder != nil && deps.Source != nil {
		s.builds = newBuildRunner(deps.Builder, deps.Source, s.hub, logger)
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(s.token))

			r.Post("/identify", s.handleIdentify)
			r.Get("/sessions", s.handleSessions)
			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/", s.handleSession)
				r.Get("/image", s.handleSessionImage)
				r.Post("/confirm", s.handleConfirm)
				r.Post("/correct", s.handleCorrect)
				r.Post("/retry", s.handleRetry)
				r.Post("/cancel", s.handleCancel)
			})

			r.Get("/catalog/stats", s.handleCatalogStats)
			r.Get("/catalog/build", s.handleBuildStatus)
			r.Post("/catalog/build", s.handleBuildStart)
			r.Get("/catalog/build/events", s.handleBuildEvents)

			r.Get("/stats", s.handleStats)
			r.Get("/stats/export", s.handleStatsExport)
			r.Get("/search", s.handleSearch)
		})
	})
	return r
}

// Start listens on the configured bind address. Cancelling ctx stops the
// server and any running build.
func (s *Server) Start(ctx context.Context) error {
	if s.bind == "" {
		return services.Wrap(services.ErrConfiguration, "operator", "start", "paths.api_bind is empty", nil)
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.baseCtx = ctx
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop cancels any build, disconnects websocket clients and shuts the
// server down.
func (s *Server) Stop() {
	if s.builds != nil {
		s.builds.cancel()
	}
	s.hub.close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = services.WithRequestID(ctx, id)
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeFailure maps an error onto a status code.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, identify.ErrSessionClosed), errors.Is(err, catalog.ErrBuildInProgress):
		status = http.StatusConflict
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, services.ErrExternalService), errors.Is(err, services.ErrTransient):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		logging.ErrorWithContext(s.logger, "api request failed", "api_request_failed", logging.Error(err))
	}
	s.writeError(w, status, err.Error())
}
