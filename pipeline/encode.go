package pipeline

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/njyeung/conreel/grid"
)

// EncodeStage turns LOADED video frames into glyph grids. Audio frames are
// passed on unchanged.
type EncodeStage struct {
	state *State
	enc   *grid.Encoder
	clock Clock
	log   *log.Logger
	rec   Recorder
}

func newEncodeStage(st *State, cfg *Config) *EncodeStage {
	opts := grid.Options{
		Color:      cfg.Settings.Color,
		Proc:       cfg.Settings.Proc,
		Charset:    cfg.Settings.Charset,
		Brightness: cfg.Settings.Brightness,
		// full redraws always start at row 0, so the color carries over
		MergeAcrossRows: !cfg.Settings.interlaced(),
	}
	return &EncodeStage{
		state: st,
		enc:   grid.NewEncoder(opts, uint64(cfg.Clock.Now().UnixNano())),
		clock: cfg.Clock,
		log:   cfg.Logger.With("stage", RoleEncode),
		rec:   cfg.Recorder,
	}
}

// Run loops until ctx is cancelled.
func (s *EncodeStage) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		if gen := s.state.Frozen(); gen != 0 {
			s.state.Ack(RoleEncode, gen)
			_ = sleepCtx(ctx, freezePoll)
			continue
		}

		f, err := s.state.Queue.Acquire(ctx, StageLoaded)
		switch {
		case errors.Is(err, ErrFrozen):
			continue
		case errors.Is(err, ErrEndOfStream):
			_ = sleepCtx(ctx, idlePoll)
			continue
		case err != nil:
			return nil
		}

		if !f.IsAudio {
			start := s.clock.Now()
			f.Grid, f.RowOffsets = s.enc.Encode(f.Grid, f.RowOffsets, f.Image)
			s.rec.FrameEncoded(s.clock.Now().Sub(start))
		}
		s.state.Queue.Release(StageProcessed)
	}
	return nil
}
