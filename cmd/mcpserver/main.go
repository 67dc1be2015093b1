package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tendant/published-content/pkg/publishedcontent/config"
	"github.com/tendant/published-content/pkg/publishedcontent/mcp"
	"github.com/tendant/published-content/pkg/publishedcontent/warmup"
)

type ServerConfig struct {
	Host    string `env:"MCP_HOST" env-default:"localhost"`
	Port    uint16 `env:"MCP_PORT" env-default:"8000"`
	BaseUrl string `env:"MCP_BASE_URL" env-default:"http://localhost:8000"`
}

func main() {
	var mode = flag.String("mode", "stdio", "Server mode: 'stdio', 'sse', or 'http'")
	var configFile = flag.String("config", "", "Optional YAML configuration file")
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil {
		slog.Info("No .env file found or error loading it, using default values", "err", err)
	}

	var serverCfg ServerConfig
	if err := cleanenv.ReadEnv(&serverCfg); err != nil {
		slog.Error("Failed to read MCP server configuration", "err", err)
		os.Exit(1)
	}

	opts := []config.Option{}
	if *configFile != "" {
		opts = append(opts, config.WithFile(*configFile))
	}
	cfg, err := config.Load(append(opts, config.WithEnv())...)
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	// stdout carries the protocol in stdio mode
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := cfg.BuildCache(ctx, logger)
	if err != nil {
		slog.Error("Failed to build content cache", "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	reloader := warmup.NewReloader(rt.Cache, cfg.ReloadInterval, cfg.WarmOnReload, logger)
	if _, err := reloader.RunOnce(ctx); err != nil {
		slog.Error("Failed to load content", "backend", cfg.Backend, "err", err)
		os.Exit(1)
	}
	if cfg.ReloadInterval > 0 {
		go reloader.Run(ctx)
	}

	s := server.NewMCPServer(
		"Published Content Mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	mcp.NewHandler(rt.Cache, logger).RegisterTools(s)

	switch *mode {
	case "sse":
		sseServer := server.NewSSEServer(s, server.WithBaseURL(serverCfg.BaseUrl))
		slog.Info("Starting SSE server", "base url", serverCfg.BaseUrl)
		if err := sseServer.Start(fmt.Sprintf("%s:%d", serverCfg.Host, serverCfg.Port)); err != nil {
			slog.Error("Failed to start SSE server", "err", err)
			os.Exit(-1)
		}
	case "http":
		httpServer := server.NewStreamableHTTPServer(s)
		slog.Info("HTTP server listening", "port", serverCfg.Port)
		if err := httpServer.Start(fmt.Sprintf("%s:%d", serverCfg.Host, serverCfg.Port)); err != nil {
			slog.Error("Server error", "err", err)
			os.Exit(-1)
		}
	default:
		slog.Info("Starting in stdio mode")
		if err := server.ServeStdio(s); err != nil {
			slog.Error("Failed to start stdio server", "err", err)
			os.Exit(-1)
		}
	}
}
