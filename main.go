// Package main provides a real-time stereo level meter that taps a live audio input
// and serves levels with decaying peaks over HTTP and WebSocket.
//
// Usage:
//
//	zwfm-meter [-config path/to/config.json] [-list-devices] [-version]
//
// If -config is not specified, the meter looks for config.json in the same
// directory as the binary. Every setting can be overridden with a ZWFM_METER_
// environment variable, e.g. ZWFM_METER_SYSTEM_PORT=9000.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-meter/internal/audio"
	"github.com/oszuidwest/zwfm-meter/internal/capture"
	"github.com/oszuidwest/zwfm-meter/internal/config"
	"github.com/oszuidwest/zwfm-meter/internal/meter"
	"github.com/oszuidwest/zwfm-meter/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	listDevices := flag.Bool("list-devices", false, "List audio input devices and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *listDevices {
		for _, d := range audio.Devices() {
			fmt.Printf("%s\t%s\n", d.ID, d.Name)
		}
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ffmpegPath := util.ResolveFFmpegPath(cfg.System.FFmpegPath)
	if ffmpegPath != "" {
		slog.Info("FFmpeg found", "path", ffmpegPath)
	}

	engine, err := meter.New(cfg.Meter)
	if err != nil {
		slog.Error("failed to create meter", "error", err)
		os.Exit(1)
	}

	sup := capture.NewSupervisor(engine,
		capture.ExecOpener(cfg.Audio.Input, ffmpegPath),
		capture.WithTapOptions(cfg.TapOptions()...),
	)

	ctx, stop := signal.NotifyContext(context.Background(), util.ShutdownSignals()...)
	defer stop()

	var wg sync.WaitGroup
	wg.Go(func() {
		if err := sup.Run(ctx); err != nil {
			slog.Error("audio capture stopped", "error", err)
		}
	})

	srv := NewServer(cfg, engine, sup)
	httpServer := srv.Start()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	wg.Wait()

	if err := engine.Dispose(); err != nil {
		slog.Error("error disposing meter", "error", err)
	}

	slog.Info("shutdown complete")
}
