package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gdamore/tcell/v2"

	"traincraft.dev/internal/cab"
	"traincraft.dev/internal/logging"
)

func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name    = flag.String("name", "cab", "driver name")
		trainID = flag.String("train", "", "train to drive (empty: server picks)")
		mute    = flag.Bool("mute", false, "disable audio cues")
		logPath = flag.String("log", "", "log file (the terminal is owned by the cab)")
	)
	flag.Parse()

	stderr := logging.New("info", os.Stderr, true)
	var logOut io.Writer = io.Discard
	if *logPath != "" {
		_ = os.MkdirAll(filepath.Dir(*logPath), 0o755)
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			stderr.Fatal().Err(err).Msg("open log")
		}
		defer f.Close()
		logOut = f
	}
	logger := logging.Component(logging.New("debug", logOut, false), "cab")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := cab.Dial(ctx, *url, *name, *trainID)
	if err != nil {
		stderr.Fatal().Err(err).Str("url", *url).Msg("dial")
	}
	defer conn.Close()

	var player cab.Player = cab.Silent{}
	if !*mute {
		if p, err := cab.NewBeepPlayer(); err != nil {
			logger.Warn().Err(err).Msg("audio unavailable")
		} else {
			player = p
		}
	}
	defer player.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		logger.Fatal().Err(err).Msg("screen")
	}
	if err := screen.Init(); err != nil {
		logger.Fatal().Err(err).Msg("screen init")
	}

	err = cab.NewSession(conn, screen, player, logger).Run(ctx)
	screen.Fini()
	if err != nil {
		stderr.Error().Err(err).Msg("cab stopped")
		os.Exit(1)
	}
}
