package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
)

const pausePoll = 10 * time.Millisecond

// OutputStage consumes PROCESSED frames in order: audio goes to the
// AudioQueue, video is paced and drawn.
type OutputStage struct {
	state    *State
	renderer Renderer
	settings Settings
	clock    Clock
	log      *log.Logger
	rec      Recorder

	pacer     *pacer
	part      int
	rows      []RowRange
	preloaded bool
}

func newOutputStage(st *State, cfg *Config) *OutputStage {
	return &OutputStage{
		state:    st,
		renderer: cfg.Renderer,
		settings: cfg.Settings,
		clock:    cfg.Clock,
		log:      cfg.Logger.With("stage", RoleOutput),
		rec:      cfg.Recorder,
		pacer:    newPacer(cfg.Clock, cfg.Decoder.Info().FPS),
	}
}

// Run loops until the queue drains after end of stream, in which case it
// returns ErrEndOfStream, or until ctx is cancelled.
func (s *OutputStage) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		if gen := s.state.Frozen(); gen != 0 {
			s.state.Ack(RoleOutput, gen)
			s.preloaded = false
			s.pacer.reset()
			_ = sleepCtx(ctx, freezePoll)
			continue
		}
		if s.state.Paused() {
			s.pacer.reset()
			_ = sleepCtx(ctx, pausePoll)
			continue
		}
		if !s.ready() {
			_ = sleepCtx(ctx, s.state.Queue.poll)
			continue
		}

		f, err := s.state.Queue.Acquire(ctx, StageProcessed)
		switch {
		case errors.Is(err, ErrFrozen):
			continue
		case errors.Is(err, ErrEndOfStream):
			s.log.Debug("queue drained")
			return ErrEndOfStream
		case err != nil:
			return nil
		}

		if f.IsAudio {
			if s.settings.Sync != SyncDisabled && !s.settings.NoAudio {
				s.forwardAudio(ctx, f)
			}
		} else if err := s.present(ctx, f); err != nil {
			s.state.Queue.Release(StageFree)
			return err
		}
		s.state.Queue.Release(StageFree)
		s.rec.QueueDepth(s.state.Queue.Len())
	}
	return nil
}

// ready holds back the first frame until the queue is full when preloading.
func (s *OutputStage) ready() bool {
	if !s.settings.Preload || s.preloaded {
		return true
	}
	q := s.state.Queue
	if q.Len() >= q.Size()-1 || q.Ended() {
		s.preloaded = true
	}
	return s.preloaded
}

// forwardAudio scales the samples by the live volume and queues them for
// the sink, waiting while the audio queue is full.
func (s *OutputStage) forwardAudio(ctx context.Context, f *Frame) {
	scaleVolume(f.Samples, s.state.Volume())
	for !s.state.Audio.Push(f.Samples) {
		if s.state.Frozen() != 0 {
			return
		}
		if err := sleepCtx(ctx, s.state.Queue.poll); err != nil {
			return
		}
	}
}

func (s *OutputStage) present(ctx context.Context, f *Frame) error {
	var late time.Duration
	if s.settings.Sync != SyncDisabled {
		var err error
		if late, err = s.pacer.wait(ctx); err != nil {
			return nil
		}
	}

	s.state.setPosition(f.Timestamp)
	if err := s.renderer.Draw(f.grid(), s.nextRows(f.Image.Height)); err != nil {
		return fmt.Errorf("draw frame at %s: %w", f.Timestamp, err)
	}
	s.pacer.advance()
	s.rec.FrameRendered(late)
	return nil
}

// nextRows returns the bands to draw for this frame. Without interlacing
// that is the whole frame; otherwise rows are grouped into bands of
// ScanlineHeight and band b is drawn on frames where b%Scanlines == part.
func (s *OutputStage) nextRows(height int) []RowRange {
	s.rows = s.rows[:0]
	if !s.settings.interlaced() {
		return append(s.rows, RowRange{0, height})
	}
	bandH := max(s.settings.ScanlineHeight, 1)
	for y, band := 0, 0; y < height; y, band = y+bandH, band+1 {
		if band%s.settings.Scanlines == s.part {
			s.rows = append(s.rows, RowRange{y, min(y+bandH, height)})
		}
	}
	s.part = (s.part + 1) % s.settings.Scanlines
	return s.rows
}

func scaleVolume(samples []int16, vol float64) {
	if vol >= 1 {
		return
	}
	for i, v := range samples {
		samples[i] = int16(math.Round(float64(v) * vol))
	}
}
