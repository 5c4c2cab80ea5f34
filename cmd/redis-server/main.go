// Command redis-server runs one instance of the server: a master by
// default, or a replica of another instance when --replicaof is set.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/alwaysvivek/redis-go/internal/config"
	"github.com/alwaysvivek/redis-go/internal/metrics"
	"github.com/alwaysvivek/redis-go/internal/replication"
	"github.com/alwaysvivek/redis-go/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "path to a YAML config file")
		port        = flag.Int("port", 0, "port to listen on (overrides config)")
		replicaof   = flag.String("replicaof", "", "\"<host> <port>\" of a master to replicate")
		dir         = flag.String("dir", "", "RDB directory reported by CONFIG GET dir (overrides config)")
		dbfilename  = flag.String("dbfilename", "", "RDB filename (overrides config)")
		rateLimit   = flag.Int("rate-limit", -1, "commands/sec/connection, 0 disables (overrides config)")
		logLevel    = flag.String("log-level", "", "debug, info, warn, or error (overrides config)")
		logFormat   = flag.String("log-format", "", "text or json (overrides config)")
		metricsAddr = flag.String("metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9121")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cfg, *port, *replicaof, *dir, *dbfilename, *rateLimit, *logLevel, *logFormat, *metricsAddr)

	logger := newLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var reg *metrics.Registry
	if cfg.Server.MetricsAddr != "" {
		reg = metrics.New()
		go serveMetrics(ctx, logger, cfg.Server.MetricsAddr, reg)
	}

	repl, masterHost, masterPort, err := resolveRole(cfg.Server.Replicaof)
	if err != nil {
		return err
	}

	srv := server.New(repl, server.Options{
		Dir:        cfg.Server.Dir,
		DBFilename: cfg.Server.DBFilename,
		RateLimit:  cfg.Server.RateLimit,
		Metrics:    reg,
		Logger:     logger,
	})

	addr := ":" + strconv.Itoa(cfg.Server.Port)

	if repl.Role == "slave" {
		go connectToMaster(ctx, logger, srv, masterHost, masterPort, cfg.Server.Port)
	}

	logger.Info("redis-server starting", "addr", addr, "role", repl.Role)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("redis-server stopped")
	return nil
}

// loadConfig layers defaults, an optional file, and environment
// variables through internal/config; CLI flags are applied afterward
// by applyFlagOverrides so flags always win.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	loader := config.NewLoader(configFile)
	return loader.Load()
}

// applyFlagOverrides writes any flag the user actually set on top of
// the layered config, matching the flag > env > file > default
// precedence documented on config.Loader.
func applyFlagOverrides(cfg *config.ServerConfig, port int, replicaof, dir, dbfilename string, rateLimit int, logLevel, logFormat, metricsAddr string) {
	if port != 0 {
		cfg.Server.Port = port
	}
	if replicaof != "" {
		cfg.Server.Replicaof = replicaof
	}
	if dir != "" {
		cfg.Server.Dir = dir
	}
	if dbfilename != "" {
		cfg.Server.DBFilename = dbfilename
	}
	if rateLimit >= 0 {
		cfg.Server.RateLimit = rateLimit
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if metricsAddr != "" {
		cfg.Server.MetricsAddr = metricsAddr
	}
}

// resolveRole builds the replication.State this instance should run
// with, parsing "<host> <port>" out of --replicaof/server.replicaof
// when present.
func resolveRole(replicaof string) (repl *replication.State, host string, port int, err error) {
	if replicaof == "" {
		return replication.NewMaster(), "", 0, nil
	}
	fields := strings.Fields(replicaof)
	if len(fields) != 2 {
		return nil, "", 0, fmt.Errorf("replicaof %q: want \"<host> <port>\"", replicaof)
	}
	port, err = strconv.Atoi(fields[1])
	if err != nil {
		return nil, "", 0, fmt.Errorf("replicaof %q: bad port: %w", replicaof, err)
	}
	return replication.NewReplica(fields[0], port), fields[0], port, nil
}

// connectToMaster dials the configured master, performs the PSYNC
// handshake, and then feeds the resulting stream into the server's
// own keyspace until ctx is cancelled or the master connection drops.
func connectToMaster(ctx context.Context, logger *slog.Logger, srv *server.Server, host string, port, listenPort int) {
	mc, _, err := replication.DialAndHandshake(host, port, listenPort)
	if err != nil {
		logger.Error("replica handshake failed", "master", fmt.Sprintf("%s:%d", host, port), "error", err)
		return
	}
	logger.Info("replica handshake complete", "master", fmt.Sprintf("%s:%d", host, port))
	srv.RunReplicaOf(ctx, mc)
}

func serveMetrics(ctx context.Context, logger *slog.Logger, addr string, reg *metrics.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	httpSrv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = httpSrv.Close()
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", "error", err)
	}
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
