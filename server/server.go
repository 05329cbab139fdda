package server

import (
	"context"
	"database/sql"
	"net"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver for the metadata connection

	"github.com/ha1tch/sqlfix/metadata"
	"github.com/ha1tch/sqlfix/pkg/errors"
	"github.com/ha1tch/sqlfix/pkg/log"
	"github.com/ha1tch/sqlfix/rewrite"
	"github.com/ha1tch/sqlfix/schema"
)

// Server owns the service components and their lifecycle.
type Server struct {
	cfg    Config
	logger *log.Logger

	db       *sql.DB
	store    *metadata.Store
	rewriter *rewrite.Rewriter
	watcher  *schema.Watcher

	httpServer *http.Server
	listener   net.Listener
}

// New creates a server from the given configuration. The database is
// opened lazily; pgx validates the DSN here but connects on first use.
func New(cfg Config, logger *log.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConnectionFailed, "open database").
			WithOp("server.New")
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	store := metadata.NewStore(logger)

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		store:    store,
		rewriter: rewrite.New(store, logger),
	}

	if cfg.SchemaDir != "" {
		w, err := schema.NewWatcher(cfg.SchemaDir, s.onSchemaChange, logger)
		if err != nil {
			db.Close()
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "create schema watcher").
				WithOp("server.New")
		}
		s.watcher = w
	}

	s.httpServer = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Store exposes the metadata store, mainly for tests and the one-shot
// command mode.
func (s *Server) Store() *metadata.Store {
	return s.store
}

// Rewriter exposes the query rewriter.
func (s *Server) Rewriter() *rewrite.Rewriter {
	return s.rewriter
}

// DB exposes the warehouse connection pool.
func (s *Server) DB() *sql.DB {
	return s.db
}

// Start binds the admin listener and starts serving. It returns once
// the listener is bound; serving continues in the background.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.WarmOnStart {
		s.store.Warm(ctx, s.db)
	}

	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "start schema watcher").
				WithOp("Server.Start")
		}
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeConnectionFailed, "listen on %s", s.cfg.Addr).
			WithOp("Server.Start")
	}
	s.listener = ln

	s.logger.System().Info("sqlfix started",
		"addr", ln.Addr().String(),
	)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.System().Error("http server error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the service, draining in-flight requests up to the
// configured timeout.
func (s *Server) Shutdown() error {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.System().Error("schema watcher stop failed", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)

	if cerr := s.db.Close(); cerr != nil && err == nil {
		err = cerr
	}

	s.logger.System().Info("sqlfix stopped")
	return err
}

// onSchemaChange is the watcher callback: a redeployed schema file may
// change the hll column set, so drop the cached catalog facts.
func (s *Server) onSchemaChange(paths []string) {
	s.store.Flush()
	s.logger.System().Info("metadata caches flushed after schema change",
		"files", len(paths),
	)
}
