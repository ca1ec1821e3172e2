package player

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/njyeung/conreel/pipeline"
)

// Source is an opened decoder that the player closes after playback.
type Source interface {
	pipeline.Decoder
	io.Closer
}

type playSession struct {
	id     string
	source Source
	pipe   *pipeline.Pipeline
	log    *log.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

func newPlaySession(cfg Config) (*playSession, error) {
	id := uuid.NewString()
	logger := cfg.Logger.With("session", id)

	src, err := cfg.open()
	if err != nil {
		return nil, err
	}
	info := src.Info()
	logger.Info("opened", "inputs", cfg.Inputs, "width", info.Width, "height", info.Height,
		"fps", info.FPS, "duration", info.Duration, "audio", info.HasAudio)

	var sink pipeline.AudioSink
	if cfg.Sink != nil && info.HasAudio && !cfg.Settings.NoAudio {
		sink = cfg.Sink
	}
	pipe, err := pipeline.New(pipeline.Config{
		Settings: cfg.Settings,
		Decoder:  src,
		Renderer: cfg.Renderer,
		Sink:     sink,
		Logger:   logger,
		Recorder: cfg.Recorder,
	})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	return &playSession{id: id, source: src, pipe: pipe, log: logger}, nil
}

func (s *playSession) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	if s.stopped {
		cancel()
	}
	s.mu.Unlock()

	err := s.pipe.Run(ctx)
	if err != nil {
		s.log.Error("playback failed", "err", err)
		return err
	}
	s.log.Info("playback finished", "position", s.pipe.Position())
	return nil
}

func (s *playSession) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *playSession) cleanup() {
	if err := s.source.Close(); err != nil {
		s.log.Warn("close source", "err", err)
	}
}
