package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ha1tch/sqlfix/pkg/log"
	"github.com/ha1tch/sqlfix/pkg/version"
	"github.com/ha1tch/sqlfix/server"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sqlfix", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		// Server configuration
		addr       = fs.String("a", "127.0.0.1:8085", "Admin HTTP listen address")
		addrL      = fs.String("addr", "127.0.0.1:8085", "Admin HTTP listen address")
		dsn        = fs.String("d", "", "Postgres DSN of the warehouse")
		dsnL       = fs.String("dsn", "", "Postgres DSN of the warehouse")
		schemaDir  = fs.String("s", "", "Schema directory to watch (empty = disabled)")
		schemaDirL = fs.String("schema-dir", "", "Schema directory to watch (empty = disabled)")
		warm       = fs.Bool("warm", false, "Populate the hll column cache on startup")

		// One-shot mode
		oneShot = fs.Bool("stdin", false, "Read one query from stdin, print the rewrite, exit")

		// Logging
		logLevel  = fs.String("log-level", "info", "Log level (debug, info, warn, error)")
		logFormat = fs.String("log-format", "text", "Log format (text, json)")

		// Help and version
		showHelp     = fs.Bool("h", false, "Show help")
		showHelpL    = fs.Bool("help", false, "Show help")
		showVersion  = fs.Bool("v", false, "Show version")
		showVersionL = fs.Bool("version", false, "Show version")
	)

	fs.Usage = func() {
		printUsage(stderr)
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}

	// Coalesce short and long flags
	if *addrL != "127.0.0.1:8085" {
		*addr = *addrL
	}
	if *dsnL != "" {
		*dsn = *dsnL
	}
	if *schemaDirL != "" {
		*schemaDir = *schemaDirL
	}
	if *showHelpL {
		*showHelp = true
	}
	if *showVersionL {
		*showVersion = true
	}

	if *showHelp {
		printUsage(stdout)
		return 0
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.Full())
		return 0
	}

	// Build configuration
	cfg := server.DefaultConfig()
	cfg.Version = version.Version
	cfg.Addr = *addr
	cfg.DSN = *dsn
	cfg.SchemaDir = *schemaDir
	cfg.WarmOnStart = *warm
	cfg.LogLevel = *logLevel
	cfg.LogFormat = *logFormat

	logger, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error creating server: %v\n", err)
		return 1
	}

	if *oneShot {
		return runOneShot(srv, stdin, stdout, stderr)
	}

	if err := srv.Start(context.Background()); err != nil {
		fmt.Fprintf(stderr, "error starting server: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "sqlfix started (version %s)\n", version.Version)
	fmt.Fprintf(stdout, "  Admin API: http://%s\n", srv.Addr())
	if cfg.SchemaDir != "" {
		fmt.Fprintf(stdout, "  Watching:  %s\n", cfg.SchemaDir)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.System().Info("shutdown signal received", "signal", sig.String())
	fmt.Fprintln(stdout, "\nShutting down...")

	if err := srv.Shutdown(); err != nil {
		fmt.Fprintf(stderr, "error stopping server: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "Server stopped")
	return 0
}

// runOneShot rewrites a single query from stdin. Useful in pipelines
// and for eyeballing what a query will turn into.
func runOneShot(srv *server.Server, stdin io.Reader, stdout, stderr io.Writer) int {
	defer srv.Shutdown()

	query, err := io.ReadAll(stdin)
	if err != nil {
		fmt.Fprintf(stderr, "error reading stdin: %v\n", err)
		return 1
	}

	result := srv.Rewriter().Rewrite(context.Background(), string(query), srv.DB())
	fmt.Fprint(stdout, result)
	return 0
}

func buildLogger(cfg server.Config) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := log.ParseFormat(cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	logCfg := log.DefaultConfig()
	logCfg.DefaultLevel = level
	logCfg.Format = format
	return log.New(logCfg), nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `sqlfix - SQL rewrite sidecar for OLAP-generated queries

Rewrites known-problematic query shapes (hll aggregations) before
execution. Queries with no recognised problem pass through unchanged.

Usage:
  sqlfix [options]

Server Options:
  -a, --addr <host:port>   Admin HTTP listen address (default: 127.0.0.1:8085)
  -d, --dsn <dsn>          Postgres DSN of the warehouse (required)
  -s, --schema-dir <path>  Watch this directory and flush caches on change
      --warm               Populate the hll column cache on startup

One-shot Mode:
      --stdin              Read one query from stdin, print the rewrite, exit

Logging:
      --log-level <level>  debug, info, warn, error (default: info)
      --log-format <fmt>   text, json (default: text)

Other:
  -h, --help               Show this help
  -v, --version            Show version

Endpoints:
  POST /rewrite             {"sql": "..."} -> {"sql": "...", "rewritten": bool}
  POST /admin/flush-caches  Reset the metadata caches
  GET  /health              Liveness check
  GET  /status              Version and cache statistics
`)
}
