package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"

	"github.com/tendant/published-content/pkg/publishedcontent/api"
	"github.com/tendant/published-content/pkg/publishedcontent/config"
	"github.com/tendant/published-content/pkg/publishedcontent/warmup"
)

func main() {
	configFile := flag.String("config", "", "Optional YAML configuration file, environment variables override it")
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil {
		slog.Info("No .env file found or error loading it, using environment", "err", err)
	}

	opts := []config.Option{}
	if *configFile != "" {
		opts = append(opts, config.WithFile(*configFile))
	}
	opts = append(opts, config.WithEnv())

	cfg, err := config.Load(opts...)
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		config.Usage(os.Stderr)
		os.Exit(1)
	}

	logger := slog.Default()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := cfg.BuildCache(ctx, logger)
	if err != nil {
		slog.Error("Failed to build content cache", "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	// The first load must succeed before serving; later failures keep the last snapshot.
	reloader := warmup.NewReloader(rt.Cache, cfg.ReloadInterval, cfg.WarmOnReload, logger)
	if _, err := reloader.RunOnce(ctx); err != nil {
		slog.Error("Failed to load content", "backend", cfg.Backend, "err", err)
		os.Exit(1)
	}
	if cfg.ReloadInterval > 0 {
		go reloader.Run(ctx)
	}

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	server.R.Mount("/api/v1", api.NewRouter(rt.Cache,
		api.WithLogger(logger),
		api.WithPreviewAuth(api.NewPreviewAuth(cfg.PreviewJWTSecret)),
	))

	slog.Info("Published content server starting",
		"backend", cfg.Backend, "environment", cfg.Environment, "reload_interval", cfg.ReloadInterval)
	server.Run()
}
