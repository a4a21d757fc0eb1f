package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"traincraft.dev/internal/config"
	"traincraft.dev/internal/logging"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/server.yaml", "server config path (empty for defaults and TRAINCRAFT_* env only)")
		addr       = flag.String("addr", "", "http listen address (overrides http.addr)")
		worldID    = flag.String("world", "", "world id (overrides worldId)")
		resume     = flag.String("resume", "", `snapshot to resume from, or "latest" (overrides resume)`)
		noIndex    = flag.Bool("disable_db", false, "disable the sqlite index")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logging.New("info", os.Stderr, true)
		boot.Fatal().Err(err).Msg("load config")
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *worldID != "" {
		cfg.WorldID = *worldID
	}
	if *resume != "" {
		cfg.Resume = *resume
	}
	if *noIndex {
		cfg.Index.Enabled = false
	}

	logger := logging.New(cfg.Log.Level, os.Stdout, cfg.Log.Console).With().Str("world", cfg.WorldID).Logger()

	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup")
	}

	ctx, cancel := signalContext()
	defer cancel()

	go rt.writeSnapshots(ctx)

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := rt.world.Run(ctx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("world stopped")
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           rt.newMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info().Str("addr", cfg.HTTP.Addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("ListenAndServe")
		cancel()
	}

	<-worldDone
	rt.Close()
	logger.Info().Msg("shutdown complete")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
