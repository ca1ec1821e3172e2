package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/njyeung/conreel/audio"
	"github.com/njyeung/conreel/config"
	"github.com/njyeung/conreel/metrics"
	"github.com/njyeung/conreel/pipeline"
	"github.com/njyeung/conreel/player"
	"github.com/njyeung/conreel/term"
	"github.com/njyeung/conreel/tui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

type inputList []string

func (l *inputList) String() string     { return strings.Join(*l, ",") }
func (l *inputList) Set(v string) error { *l = append(*l, v); return nil }

type setting struct{ key, value string }

type cliOptions struct {
	configPath string
	inputs     []string
	overrides  []setting
}

func parseFlags(args []string) (cliOptions, error) {
	var opts cliOptions
	var inputs inputList

	fs := flag.NewFlagSet("conreel", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: conreel [flags] -i video [audio]\n\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.configPath, "config", config.DefaultPath(), "config file")
	fs.Var(&inputs, "i", "input file; a second input supplies missing streams")

	for _, o := range config.Options() {
		key := o.Key
		name := strings.ReplaceAll(key, "_", "-")
		set := func(v string) error {
			opts.overrides = append(opts.overrides, setting{key, v})
			return nil
		}
		if o.Bool {
			fs.BoolFunc(name, o.Help, set)
		} else {
			fs.Func(name, o.Help, set)
		}
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.inputs = append(inputs, fs.Args()...)
	if len(opts.inputs) == 0 || len(opts.inputs) > 2 {
		fs.Usage()
		return opts, errors.New("expected one or two inputs")
	}
	return opts, nil
}

// loadConfig reads the config file, applies flag overrides and converts
// the result to pipeline settings.
func loadConfig(opts cliOptions) (config.Config, pipeline.Settings, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, pipeline.Settings{}, err
	}
	for _, s := range opts.overrides {
		if err := cfg.Set(s.key, s.value); err != nil {
			return cfg, pipeline.Settings{}, fmt.Errorf("-%s: %w", strings.ReplaceAll(s.key, "_", "-"), err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, pipeline.Settings{}, err
	}
	settings, err := cfg.Settings()
	return cfg, settings, err
}

func newLogger(cfg config.Config) (*log.Logger, func(), error) {
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open log file: %w", err)
	}
	logger := log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		Level:           cfg.Level(),
		Prefix:          "conreel",
	})
	return logger, func() { f.Close() }, nil
}

func main() {
	os.Exit(run())
}

func run() int {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "conreel: %v\n", err)
		return 2
	}

	cfg, settings, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "conreel: %v\n", err)
		return 1
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "conreel: %v\n", err)
		return 1
	}
	defer closeLog()

	if !term.IsTerminal(os.Stdout) {
		fmt.Fprintln(os.Stderr, "conreel: stdout is not a terminal")
		return 1
	}

	var sink pipeline.AudioSink
	if !settings.NoAudio && settings.Sync != pipeline.SyncDisabled {
		s, err := audio.Open(cfg.AudioBackend, audio.DefaultLatency)
		if err != nil {
			fmt.Fprintf(os.Stderr, "conreel: %v\n", err)
			return 1
		}
		defer s.Close()
		sink = s
	}

	var (
		reg      *prometheus.Registry
		recorder pipeline.Recorder
	)
	if cfg.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		recorder = metrics.New(reg)
	}

	renderer := term.NewRenderer(os.Stdout, os.Stdout, term.Options{
		NoClear:    cfg.NoClear,
		CellWidth:  cfg.FontWidth,
		CellHeight: cfg.FontHeight,
	})
	p := player.NewAVPlayer(player.Config{
		Inputs: opts.inputs,
		Filters: player.Filters{
			Video:       cfg.VF,
			ScaledVideo: cfg.SVF,
			Audio:       cfg.AF,
		},
		Settings: settings,
		Renderer: renderer,
		Sink:     sink,
		Logger:   logger,
		Recorder: recorder,
		Status:   renderer.ShowStatus,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := renderer.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "conreel: %v\n", err)
		return 1
	}
	err = play(ctx, cfg, p, renderer, reg, logger)
	renderer.Stop()

	var setupErr *player.SetupError
	switch {
	case errors.As(err, &setupErr):
		fmt.Fprintf(os.Stderr, "conreel: %v\n", setupErr)
		return 1
	case err != nil:
		fmt.Fprintf(os.Stderr, "conreel: %v\n", err)
		return 1
	}
	return 0
}

// play runs playback next to the key reader and the metrics server. Either
// side ending stops the others.
func play(ctx context.Context, cfg config.Config, p *player.AVPlayer, r *term.Renderer, reg *prometheus.Registry, logger *log.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	playCtx, cancelPlay := context.WithCancel(gctx)
	defer cancelPlay()
	auxCtx, cancelAux := context.WithCancel(gctx)
	defer cancelAux()

	g.Go(func() error {
		defer cancelAux()
		return p.Play(playCtx)
	})

	if !cfg.NoKeys && term.IsTerminal(os.Stdin) {
		g.Go(func() error {
			defer cancelPlay()
			return tui.Run(auxCtx, p, os.Stdin, tui.Options{Status: r.ShowStatus, Help: r.ShowHelp, Logger: logger})
		})
	}

	if reg != nil {
		g.Go(func() error {
			if err := metrics.Serve(auxCtx, cfg.MetricsAddr, reg); err != nil {
				// metrics are optional; keep playing
				logger.Error("metrics server failed", "addr", cfg.MetricsAddr, "err", err)
			}
			return nil
		})
	}

	return g.Wait()
}
