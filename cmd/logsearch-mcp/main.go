// Command logsearch-mcp runs the log search core behind whichever
// interface layer(s) its config selects: an HTTP server, an MCP
// stdio server, or both at once.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/logsearch-mcp/internal/config"
	"github.com/standardbeagle/logsearch-mcp/internal/httpapi"
	"github.com/standardbeagle/logsearch-mcp/internal/matcher"
	"github.com/standardbeagle/logsearch-mcp/internal/mcpapi"
	"github.com/standardbeagle/logsearch-mcp/internal/reader"
	"github.com/standardbeagle/logsearch-mcp/internal/scanner"
	"github.com/standardbeagle/logsearch-mcp/internal/search"
	"github.com/standardbeagle/logsearch-mcp/internal/session"
)

// Exit codes returned via os.Exit.
const (
	exitOK           = 0
	exitConfigError  = 1
	exitRuntimeFatal = 2
)

func main() {
	app := &cli.App{
		Name:      "logsearch-mcp",
		Usage:     "Search rotated, compressed log files over HTTP and MCP/stdio",
		ArgsUsage: "<config-file>",
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitErr, ok := err.(exitCodeError); ok {
			os.Exit(exitErr.code)
		}
		os.Exit(exitRuntimeFatal)
	}
}

type exitCodeError struct {
	code int
	err  error
}

func (e exitCodeError) Error() string { return e.err.Error() }

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return exitCodeError{exitConfigError, fmt.Errorf("usage: logsearch-mcp <config-file>")}
	}
	configPath := c.Args().First()

	logger := log.New(os.Stderr, "logsearch-mcp: ", log.LstdFlags)

	watcher, err := config.Watch(configPath, logger)
	if err != nil {
		return exitCodeError{exitConfigError, fmt.Errorf("load config: %w", err)}
	}
	defer watcher.Close()
	cfg := watcher.Current()

	store, err := session.Open(session.Config{
		Path:       cfg.DataPath(),
		QuotaBytes: cfg.Session.QuotaBytes,
		IdleTTL:    time.Duration(cfg.Session.IdleTTLSeconds) * time.Second,
	})
	if err != nil {
		return exitCodeError{exitRuntimeFatal, fmt.Errorf("open session store: %w", err)}
	}
	defer store.Close()

	scan := scanner.New()
	match := matcher.New(matcher.DefaultConfig())
	engineCfg := search.Config{
		MaxConcurrentFiles:    cfg.Search.MaxConcurrentFiles,
		DefaultTimeoutMs:      cfg.Search.DefaultTimeoutMs,
		MaxBytesPerQuery:      cfg.Search.MaxBytesPerQuery,
		ReaderConfig:          reader.Config{BufferSize: cfg.Search.BufferSize},
		DefaultDriftTolerance: time.Duration(cfg.Search.DefaultDriftToleranceMs) * time.Millisecond,
	}
	engine := search.New(scan, match, store, engineCfg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go reapExpiredSessions(ctx, store, logger)

	errCh := make(chan error, 2)
	running := 0

	if cfg.Server.Mode == config.ServerModeHTTP || cfg.Server.Mode == config.ServerModeBoth {
		running++
		go func() { errCh <- runHTTP(ctx, cfg, engine, scan, store, logger) }()
	}
	if cfg.Server.Mode == config.ServerModeStdio || cfg.Server.Mode == config.ServerModeBoth {
		running++
		go func() { errCh <- mcpapi.New(engine, scan, store, cfg, logger).Run(ctx) }()
	}
	if running == 0 {
		return exitCodeError{exitConfigError, fmt.Errorf("server.mode %q selects no interface layer", cfg.Server.Mode)}
	}

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
		return nil
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			return exitCodeError{exitRuntimeFatal, fmt.Errorf("server exited: %w", err)}
		}
		return nil
	}
}

// sessionReapInterval is how often reapExpiredSessions sweeps the
// session store for idle sessions past their TTL.
const sessionReapInterval = 5 * time.Minute

// reapExpiredSessions runs store.ReapExpired on a fixed tick until ctx
// is cancelled, so idle sessions are actually cleared out of a running
// process rather than only reachable through the unused method.
func reapExpiredSessions(ctx context.Context, store *session.Store, logger *log.Logger) {
	ticker := time.NewTicker(sessionReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.ReapExpired(ctx)
			if err != nil {
				logger.Printf("session reap failed: %v", err)
				continue
			}
			if n > 0 {
				logger.Printf("reaped %d idle session(s)", n)
			}
		}
	}
}

func runHTTP(ctx context.Context, cfg *config.Config, engine *search.Engine, scan *scanner.Scanner, store *session.Store, logger *log.Logger) error {
	mux := http.NewServeMux()
	httpapi.New(engine, scan, store, cfg, logger).Register(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	logger.Printf("http interface listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

