package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"

	"github.com/webgrab/webgrab/api"
	"github.com/webgrab/webgrab/config"
	"github.com/webgrab/webgrab/housekeep"
	"github.com/webgrab/webgrab/rpc"
	"github.com/webgrab/webgrab/seqlog"
	"github.com/webgrab/webgrab/service"
)

func main() {
	stdio := flag.Bool("stdio", false, "serve the tool RPC on stdin/stdout instead of streamable HTTP")
	flag.Parse()

	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	if *stdio {
		// stdout carries the RPC stream; route everything else away.
		gin.DefaultWriter = os.Stderr
		gin.DefaultErrorWriter = os.Stderr
	}
	seqHandler := initLogger(cfg.Log, cfg.Seq, *stdio)
	if seqHandler != nil {
		defer seqHandler.Close()
	}
	slog.Info("webgrab starting",
		"host", cfg.Server.Host,
		"web_port", cfg.Server.WebPort,
		"mcp_port", cfg.Server.MCPPort,
		"mode", cfg.Server.Mode,
		"storage", cfg.Storage.Root,
	)

	// ── 3. Wire the retrieval pipeline ──────────────────────────────
	svc, err := service.New(cfg)
	if err != nil {
		slog.Error("failed to initialise service", "error", err)
		os.Exit(1)
	}

	// ── 4. Start the housekeeper ────────────────────────────────────
	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()
	keeper := housekeep.New(svc.Store(),
		cfg.Housekeeping.Interval,
		cfg.Housekeeping.MaxStorageMB,
		cfg.Housekeeping.LockStale)
	go keeper.Run(rootCtx)

	// ── 5. Start the HTTP API ───────────────────────────────────────
	router := api.NewRouter(svc, cfg)
	webAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.WebPort)
	webSrv := &http.Server{
		Addr:    webAddr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP API listening", "addr", webAddr)
		if err := webSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 6. Start the tool server ────────────────────────────────────
	mcpSrv := rpc.New(svc).MCPServer()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var shutdownMCP func(context.Context) error
	if *stdio {
		slog.Info("tool server on stdio")
		go func() {
			if err := server.ServeStdio(mcpSrv); err != nil {
				slog.Error("stdio transport error", "error", err)
			}
			// Client hung up; take the process down with it.
			quit <- syscall.SIGTERM
		}()
	} else {
		httpMCP := server.NewStreamableHTTPServer(mcpSrv)
		mcpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MCPPort)
		shutdownMCP = httpMCP.Shutdown
		go func() {
			slog.Info("tool server listening", "addr", mcpAddr)
			if err := httpMCP.Start(mcpAddr); err != nil && err != http.ErrServerClosed {
				slog.Error("tool server error", "error", err)
				os.Exit(1)
			}
		}()
	}

	// ── 7. Graceful shutdown ────────────────────────────────────────
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())
	stop()

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := webSrv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}
	if shutdownMCP != nil {
		if err := shutdownMCP(ctx); err != nil {
			slog.Error("tool server forced shutdown", "error", err)
		}
	}

	slog.Info("webgrab stopped")
}

// initLogger configures slog from LogConfig, fanning out to Seq when a
// sink URL is configured. The returned handler must be closed on exit so
// queued events drain.
func initLogger(logCfg config.LogConfig, seqCfg config.SeqConfig, stdio bool) *seqlog.Handler {
	var level slog.Level
	switch logCfg.Level {
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

	out := os.Stdout
	if stdio {
		out = os.Stderr
	}

	var local slog.Handler
	if logCfg.Format == "text" {
		local = slog.NewTextHandler(out, opts)
	} else {
		local = slog.NewJSONHandler(out, opts)
	}

	if seqCfg.URL == "" {
		slog.SetDefault(slog.New(local))
		return nil
	}

	seq := seqlog.New(seqCfg.URL, seqCfg.APIKey, level)
	slog.SetDefault(slog.New(seqlog.Fanout(local, seq)))
	return seq
}
