package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"

	"github.com/e7canasta/orion-wellness/internal/capture"
	"github.com/e7canasta/orion-wellness/internal/capture/webcam"
	"github.com/e7canasta/orion-wellness/internal/config"
	"github.com/e7canasta/orion-wellness/internal/core"
	"github.com/e7canasta/orion-wellness/internal/logging"
)

const defaultConfigPath = "config/wellness.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	load := config.Load
	if *configPath == defaultConfigPath {
		load = config.LoadOrDefault
	}
	cfg, err := load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	// Live redraw owns stdout, so logs move to stderr.
	live := !color.NoColor && isatty.IsTerminal(os.Stdout.Fd())
	var console io.Writer = os.Stdout
	if live {
		console = os.Stderr
	}

	logger, logCloser, err := logging.New(console, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	slog.Info("starting wellness service",
		"config", *configPath,
		"instance_id", cfg.InstanceID,
		"debug", *debug,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	source, err := newSource(cfg.Camera)
	if err != nil {
		slog.Error("failed to create capture source", "error", err)
		os.Exit(1)
	}

	wellness, err := core.New(cfg, core.Options{
		Source: source,
		Out:    color.Output,
		Live:   live,
	})
	if err != nil {
		slog.Error("failed to create wellness service", "error", err)
		os.Exit(1)
	}

	if cfg.Health.Enabled {
		if err := wellness.StartHealthServer(cfg.Health.Port); err != nil {
			slog.Error("failed to start health check server", "error", err)
			os.Exit(1)
		}
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- wellness.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			slog.Error("service error", "error", err)
		} else {
			slog.Info("service stopped (via MQTT shutdown command)")
		}
	}

	shutdownTimeout := wellness.ShutdownTimeout()
	slog.Info("shutting down gracefully", "timeout", shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := wellness.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
		os.Exit(1)
	}

	slog.Info("wellness service stopped successfully")
}

// newSource returns the webcam for v4l2 and nil for mock, which core builds
// itself.
func newSource(cam config.CameraConfig) (capture.Source, error) {
	if cam.Source != "v4l2" {
		return nil, nil
	}
	src, err := webcam.New(webcam.Config{
		Device: cam.Device,
		Width:  cam.Width,
		Height: cam.Height,
		FPS:    cam.FPS,
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}
