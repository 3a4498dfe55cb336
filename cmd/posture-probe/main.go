// posture-probe samples the configured camera and prints what the posture
// classifier sees, for placing the camera and tuning thresholds.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/e7canasta/orion-wellness/internal/capture"
	"github.com/e7canasta/orion-wellness/internal/capture/webcam"
	"github.com/e7canasta/orion-wellness/internal/config"
	"github.com/e7canasta/orion-wellness/internal/core"
	"github.com/e7canasta/orion-wellness/internal/posture"
	"github.com/e7canasta/orion-wellness/internal/types"
	"github.com/e7canasta/orion-wellness/internal/worker"
)

type options struct {
	ConfigPath   string
	Frames       int
	Interval     time.Duration
	OutputDir    string
	OutputFormat string
	JPEGQuality  int
	Debug        bool
}

type probeStats struct {
	evaluated int
	detected  int
	fallbacks int
}

func main() {
	opts := parseFlags()

	logLevel := slog.LevelInfo
	if opts.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutdown signal received, stopping")
		cancel()
	}()

	if err := run(ctx, opts); err != nil && ctx.Err() == nil {
		slog.Error("probe failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.ConfigPath, "config", "config/wellness.yaml", "Path to configuration file")
	flag.IntVar(&opts.Frames, "frames", 10, "Frames to evaluate (0 = until interrupted)")
	flag.DurationVar(&opts.Interval, "interval", time.Second, "Delay between evaluations")
	flag.StringVar(&opts.OutputDir, "output", "", "Directory to save evaluated frames (optional)")
	flag.StringVar(&opts.OutputFormat, "format", "png", "Output format: png or jpeg")
	flag.IntVar(&opts.JPEGQuality, "jpeg-quality", 90, "JPEG quality (1-100, only for JPEG)")
	flag.BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if opts.Interval <= 0 {
		fmt.Fprintf(os.Stderr, "Error: -interval must be positive\n")
		os.Exit(1)
	}
	return opts
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return err
	}

	var source capture.Source
	switch cfg.Camera.Source {
	case "v4l2":
		source, err = webcam.New(webcam.Config{
			Device: cfg.Camera.Device,
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			FPS:    cfg.Camera.FPS,
		})
	default:
		source, err = core.NewMockSource(cfg.Camera)
	}
	if err != nil {
		return fmt.Errorf("capture source: %w", err)
	}

	var detector posture.Detector = posture.SkinDetector{}
	if cfg.Detector.Command != "" {
		pd, err := worker.NewProcessDetector(worker.Config{
			Command:  cfg.Detector.Command,
			Args:     cfg.Detector.Args,
			Timeout:  cfg.DetectorTimeout(),
			MinScore: cfg.Detector.MinScore,
		})
		if err != nil {
			return err
		}
		if err := pd.Start(ctx); err != nil {
			return fmt.Errorf("start detector: %w", err)
		}
		defer pd.Stop()
		detector = pd
	}

	var saver *capture.FrameSaver
	if opts.OutputDir != "" {
		if saver, err = capture.NewFrameSaver(opts.OutputDir, opts.OutputFormat, opts.JPEGQuality); err != nil {
			return err
		}
	}

	stream, err := source.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire camera: %w", err)
	}
	defer source.Release(stream)

	printBanner(cfg, opts)

	var stats probeStats
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for opts.Frames == 0 || stats.evaluated < opts.Frames {
		select {
		case <-ctx.Done():
			printSummary(stats, saver)
			return ctx.Err()
		case <-ticker.C:
		}

		frame, ok := stream.CurrentFrame()
		if !ok {
			slog.Debug("probe: no frame yet")
			continue
		}
		stats.evaluated++

		box, found, err := detector.DetectFace(ctx, frame)
		if err != nil {
			slog.Warn("probe: detector failed, using skin heuristic", "error", err)
			stats.fallbacks++
			box, found = posture.DetectSkin(frame)
		}

		status := types.UndetectedStatus()
		if found {
			stats.detected++
			status = posture.Classify(box, frame.Width, frame.Height)
		}
		printStatus(frame, status)

		if saver != nil {
			var outlined *types.BoundingBox
			if found {
				outlined = &box
			}
			if path, err := saver.Save(frame, outlined); err != nil {
				slog.Warn("probe: failed to save frame", "error", err)
			} else {
				slog.Debug("probe: frame saved", "path", path)
			}
		}
	}

	printSummary(stats, saver)
	return nil
}

var classColors = map[types.Classification]*color.Color{
	types.ClassOK:      color.New(color.FgGreen),
	types.ClassWarn:    color.New(color.FgYellow),
	types.ClassBad:     color.New(color.FgRed, color.Bold),
	types.ClassUnknown: color.New(color.FgHiBlack),
}

func printBanner(cfg *config.Config, opts options) {
	color.New(color.FgCyan, color.Bold).Println("posture-probe")
	fmt.Printf("  source:   %s %s (%dx%d @ %.1f fps)\n",
		cfg.Camera.Source, cfg.Camera.Device, cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS)
	fmt.Printf("  detector: %s\n", detectorName(cfg))
	fmt.Printf("  bands:    too close > %.2f, slightly close > %.2f, too far < %.2f\n",
		posture.TooCloseRatio, posture.SlightlyCloseRatio, posture.TooFarRatio)
	fmt.Printf("            too high > %.2f, slightly high > %.2f, too low < %.2f\n",
		posture.TooHighRelY, posture.SlightlyHighRelY, posture.TooLowRelY)
	if opts.OutputDir != "" {
		fmt.Printf("  output:   %s (%s)\n", opts.OutputDir, opts.OutputFormat)
	}
	fmt.Println()
}

func detectorName(cfg *config.Config) string {
	if cfg.Detector.Command == "" {
		return "skin heuristic"
	}
	return cfg.Detector.Command
}

func printStatus(frame types.Frame, s types.PostureStatus) {
	fmt.Printf("#%-5d ratio=%.3f relY=%.3f  ", frame.Seq, s.FaceRatio, s.RelY)
	for _, axis := range types.Axes {
		r := s.Reading(axis)
		classColors[r.Class].Printf("%s: %s  ", axis, r.Text())
	}
	fmt.Println()
}

func printSummary(stats probeStats, saver *capture.FrameSaver) {
	fmt.Println()
	fmt.Printf("evaluated %d frames, face found in %d, detector fallbacks %d\n",
		stats.evaluated, stats.detected, stats.fallbacks)
	if saver != nil {
		saved, dropped := saver.Stats()
		fmt.Printf("saved %d frames (%d failed)\n", saved, dropped)
	}
}
