// Package http serves the read-only query API over gorilla/mux.
package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/bookpulse/engine/internal/interfaces/http/handlers"
	"github.com/bookpulse/engine/internal/telemetry"
)

// Server is the read-only HTTP query surface.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *handlers.Handlers
	metrics  *telemetry.Metrics
	config   ServerConfig
}

// ServerConfig holds server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DefaultServerConfig binds to localhost only.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "127.0.0.1",
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer wires the handler set into a configured HTTP server.
func NewServer(config ServerConfig, deps handlers.Deps, metrics *telemetry.Metrics) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("port %d is busy or unavailable: %w", config.Port, err)
	}
	listener.Close()

	s := &Server{
		router:   mux.NewRouter(),
		handlers: handlers.New(deps),
		metrics:  metrics,
		config:   config,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.timeoutMiddleware)
	if s.metrics != nil {
		s.router.Use(s.metricsMiddleware)
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.handlers.Health).Methods("GET")

	api.HandleFunc("/book/{venue}/{symbol}", s.handlers.Book).Methods("GET")
	api.HandleFunc("/book/{venue}/{symbol}/history", s.handlers.BookHistory).Methods("GET")

	api.HandleFunc("/imbalance/{venue}/{symbol}", s.handlers.Imbalance).Methods("GET")
	api.HandleFunc("/liquidity/{venue}/{symbol}", s.handlers.Liquidity).Methods("GET")
	api.HandleFunc("/toxicity/{venue}/{symbol}", s.handlers.Toxicity).Methods("GET")

	api.HandleFunc("/zones/{venue}/{symbol}", s.handlers.Zones).Methods("GET")
	api.HandleFunc("/detections/{venue}/{symbol}", s.handlers.Detections).Methods("GET")
	api.HandleFunc("/signal/{venue}/{symbol}", s.handlers.Signal).Methods("GET")

	api.HandleFunc("/impact/{venue}/{symbol}", s.handlers.Impact).Methods("GET")
	api.HandleFunc("/plan/{venue}/{symbol}", s.handlers.Plan).Methods("GET")

	api.HandleFunc("/footprint/{venue}/{symbol}", s.handlers.Footprint).Methods("GET")
	api.HandleFunc("/profile/{venue}/{symbol}", s.handlers.Profile).Methods("GET")

	api.HandleFunc("/aggregate/{symbol}", s.handlers.Aggregate).Methods("GET")
	api.HandleFunc("/arbitrage/{symbol}", s.handlers.Arbitrage).Methods("GET")
	api.HandleFunc("/route/{symbol}", s.handlers.Route).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), handlers.RequestIDKey(), requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.HTTPDuration.WithLabelValues(route, r.Method,
			strconv.Itoa(wrapper.statusCode)).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Router exposes the configured router; tests drive it directly.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.GetAddress()).Msg("http server starting")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("http server shutting down")
	return s.server.Shutdown(ctx)
}

// GetAddress returns the bound address.
func (s *Server) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
