// Command test plays a synthetic color-bar pattern, or a GIF or image given
// as argument, through the full pipeline without FFmpeg.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/njyeung/conreel/audio"
	"github.com/njyeung/conreel/config"
	"github.com/njyeung/conreel/pipeline"
	"github.com/njyeung/conreel/player"
	"github.com/njyeung/conreel/source"
	"github.com/njyeung/conreel/term"
	"github.com/njyeung/conreel/tui"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		fps      = flag.Float64("fps", 30, "pattern frame rate")
		duration = flag.Duration("duration", 30*time.Second, "pattern length")
		tone     = flag.Float64("tone", 440, "pattern tone in Hz, 0 for silence")
		loops    = flag.Int("loops", 3, "GIF repetitions")
		color    = flag.String("color", "rgb", "rgb | 256 | 16 | gray")
		sync     = flag.String("sync", "enabled", "enabled | draw-all | disabled")
		scaling  = flag.String("scaling", "bicubic", "nearest | fast-bilinear | bilinear | bicubic")
	)
	flag.Parse()

	cfg := config.Default()
	cfg.Color, cfg.Sync, cfg.Scaling = *color, *sync, *scaling
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	settings, err := cfg.Settings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	open := func() (player.Source, error) {
		return source.NewPattern(source.PatternOptions{
			Width: 640, Height: 360, FPS: *fps, Duration: *duration, Tone: *tone,
		})
	}
	if flag.NArg() > 0 {
		path := flag.Arg(0)
		open = func() (player.Source, error) { return source.Open(path, *loops) }
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := log.NewWithOptions(logFile, log.Options{ReportTimestamp: true, Level: log.DebugLevel}).
		With("run", uuid.NewString())

	var sink pipeline.AudioSink
	if settings.Sync != pipeline.SyncDisabled {
		s, err := audio.Open(cfg.AudioBackend, audio.DefaultLatency)
		if err != nil {
			logger.Warn("audio disabled", "err", err)
		} else {
			defer s.Close()
			sink = s
		}
	}

	renderer := term.NewRenderer(os.Stdout, os.Stdout, term.Options{})
	p := player.NewAVPlayer(player.Config{
		Settings: settings,
		Renderer: renderer,
		Sink:     sink,
		Logger:   logger,
		Status:   renderer.ShowStatus,
		Open:     open,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := renderer.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	keysCtx, cancelKeys := context.WithCancel(gctx)
	defer cancelKeys()
	g.Go(func() error {
		defer cancelKeys()
		return p.Play(gctx)
	})
	if term.IsTerminal(os.Stdin) {
		g.Go(func() error {
			return tui.Run(keysCtx, p, os.Stdin, tui.Options{Status: renderer.ShowStatus, Help: renderer.ShowHelp, Logger: logger})
		})
	}
	err = g.Wait()
	renderer.Stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
