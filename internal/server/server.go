/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/paraspace/internal/api"
	"github.com/friendsincode/paraspace/internal/cache"
	"github.com/friendsincode/paraspace/internal/config"
	"github.com/friendsincode/paraspace/internal/db"
	"github.com/friendsincode/paraspace/internal/eventbus"
	"github.com/friendsincode/paraspace/internal/leadership"
	"github.com/friendsincode/paraspace/internal/logbuffer"
	"github.com/friendsincode/paraspace/internal/planner"
	"github.com/friendsincode/paraspace/internal/storage"
	"github.com/friendsincode/paraspace/internal/telemetry"
)

const (
	maintenanceInterval = time.Hour
	dbMetricsInterval   = 30 * time.Second
	requestTimeout      = 5 * time.Minute
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	cache     *cache.Cache
	logBuffer *logbuffer.Buffer
	bus       eventbus.Bus
	archive   storage.ObjectStore
	planner   *planner.Service
	election  *leadership.Election
	api       *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("paraspace-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(timeoutMiddleware(requestTimeout))

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:    cfg.Addr(),
		Handler: srv.router,
		// Header deadline guards against slowloris; bodies are capped by the API.
		ReadHeaderTimeout: 15 * time.Second,
		// Event streams hold the connection open, so no write deadline here.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

// timeoutMiddleware bounds request handling except for websocket upgrades.
func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	timeout := middleware.Timeout(d)
	return func(next http.Handler) http.Handler {
		limited := timeout(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if s.cfg.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		cacheCfg.SolveTTL = s.cfg.CacheTTL
		c, err := cache.New(cacheCfg, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("solve cache unavailable, continuing without it")
		} else {
			s.cache = c
			s.DeferClose(c.Close)
		}
	}

	bus, err := eventbus.New(s.busConfig(), s.logger)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	s.bus = bus
	s.DeferClose(bus.Close)

	archive, err := s.openArchive()
	if err != nil {
		return fmt.Errorf("solution archive: %w", err)
	}
	s.archive = archive

	s.planner = planner.New(database, planner.Config{
		Deadline:     s.cfg.SolveDeadline,
		MaxTokens:    s.cfg.MaxTokens,
		BatchWorkers: s.cfg.BatchWorkers,
	}, s.logger)
	if s.cache != nil {
		s.planner.SetCache(s.cache)
	}
	s.planner.SetBus(s.bus)
	if s.archive != nil {
		s.planner.SetArchive(s.archive)
	}

	if s.cfg.LeaderElection {
		election, err := leadership.New(leadership.Config{
			RedisAddr:     s.cfg.RedisAddr,
			RedisPassword: s.cfg.RedisPassword,
			RedisDB:       s.cfg.RedisDB,
			InstanceID:    s.cfg.InstanceID,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("leader election: %w", err)
		}
		election.Start(context.Background())
		s.election = election
		s.DeferClose(election.Stop)
		s.planner.SetLeader(election)
	}

	if !s.cfg.AuthEnabled() {
		s.logger.Warn().Msg("PARASPACE_JWT_SIGNING_KEY not set, API authentication disabled")
	}
	s.api = api.New(s.planner, []byte(s.cfg.JWTSigningKey), s.logger)
	s.api.SetMaxBodyBytes(s.cfg.MaxBodyBytes)
	if s.logBuffer != nil {
		s.api.SetLogBuffer(s.logBuffer)
	}
	return nil
}

func (s *Server) busConfig() eventbus.Config {
	redisCfg := eventbus.DefaultRedisConfig()
	redisCfg.Addr = s.cfg.RedisAddr
	redisCfg.Password = s.cfg.RedisPassword
	redisCfg.DB = s.cfg.RedisDB

	natsCfg := eventbus.DefaultNATSConfig()
	natsCfg.URL = s.cfg.NATSURL

	return eventbus.Config{
		Backend: eventbus.Backend(s.cfg.EventBackend),
		NodeID:  s.cfg.InstanceID,
		Redis:   redisCfg,
		NATS:    natsCfg,
	}
}

func (s *Server) openArchive() (storage.ObjectStore, error) {
	switch s.cfg.ArchiveBackend {
	case config.ArchiveFS:
		return storage.NewFilesystemStore(s.cfg.ArchiveDir)
	case config.ArchiveS3:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          s.cfg.S3Bucket,
			Region:          s.cfg.S3Region,
			Endpoint:        s.cfg.S3Endpoint,
			AccessKeyID:     s.cfg.S3AccessKeyID,
			SecretAccessKey: s.cfg.S3SecretAccessKey,
			UsePathStyle:    s.cfg.S3UsePathStyle,
		})
	}
	return nil, nil
}

// HTTPServer exposes the configured HTTP server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Planner returns the planner service.
func (s *Server) Planner() *planner.Service {
	return s.planner
}

// LogBuffer returns the server's log buffer for attaching to zerolog.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.cfg.RunRetention > 0 {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.planner.RunMaintenance(ctx, maintenanceInterval, s.cfg.RunRetention); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("run maintenance exited")
			}
		}()
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(dbMetricsInterval)
		defer ticker.Stop()
		for {
			db.UpdateConnectionMetrics(s.db)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := "ok"
		code := http.StatusOK
		if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(r.Context()) != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		response := fmt.Sprintf(`{"status":%q`, status)
		if s.election != nil {
			response += fmt.Sprintf(`,"leader":%t`, s.election.IsLeader())
		}
		response += `}`
		w.WriteHeader(code)
		_, _ = w.Write([]byte(response))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}
