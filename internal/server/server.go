// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of passkeyd.
//
// passkeyd is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package server wires configuration, storage, the identity bridge, and
// the ceremony service into an HTTP server.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jeremyhahn/passkeyd/internal/config"
	"github.com/jeremyhahn/passkeyd/internal/storage/sqlite"
	"github.com/jeremyhahn/passkeyd/pkg/passkey"
	passkeyhttp "github.com/jeremyhahn/passkeyd/pkg/passkey/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server hosts the ceremony endpoint and, when enabled, the Prometheus
// metrics endpoint.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	store      passkey.DocumentStore
	directory  *passkey.MemoryDirectory
	closers    []io.Closer
}

// New builds a server from the configuration.
func New(cfg *config.Config) (*Server, error) {
	logger := newLogger(cfg.Logging)

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		directory: passkey.NewMemoryDirectory(),
	}

	store, err := s.openStore()
	if err != nil {
		return nil, err
	}
	s.store = store

	tokenCfg := cfg.TokenSettings()
	bridge, err := passkey.NewJWTIdentityBridge(&tokenCfg, s.directory)
	if err != nil {
		return nil, fmt.Errorf("identity bridge: %w", err)
	}

	svc, err := passkey.NewService(passkey.ServiceParams{
		Config:   &cfg.Passkey,
		Store:    store,
		Identity: bridge,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("ceremony service: %w", err)
	}

	resolver := passkey.NewOriginResolver(&cfg.Passkey)
	handler := passkeyhttp.NewHandler(svc, resolver, bridge).WithLogger(logger)
	if cfg.RateLimit.Enabled {
		handler = handler.WithRateLimit(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Route("/api/passkeys", func(r chi.Router) {
		passkeyhttp.MountChi(r, handler)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s, nil
}

// Logger returns the server's structured logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// Directory returns the in-process email directory. Accounts registered
// here become resolvable through the uid field.
func (s *Server) Directory() *passkey.MemoryDirectory {
	return s.directory
}

// Start begins serving. It blocks until the listener fails or the
// server is stopped.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down and closes storage.
func (s *Server) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	for _, c := range s.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (s *Server) openStore() (passkey.DocumentStore, error) {
	switch s.cfg.Storage.Backend {
	case "sqlite":
		store, err := sqlite.Open(s.cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		s.closers = append(s.closers, store)
		return store, nil
	default:
		return passkey.NewMemoryDocumentStore(), nil
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
