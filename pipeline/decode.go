package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/njyeung/conreel/grid"
)

const (
	// refreshPeriod is how often the renderer's grid is re-measured.
	refreshPeriod = 200 * time.Millisecond

	freezePoll = 4 * time.Millisecond
	idlePoll   = 30 * time.Millisecond
)

// DecodeStage reads packets from the Decoder in timestamp order and loads
// the decoded frames into FREE slots.
type DecodeStage struct {
	state    *State
	dec      Decoder
	renderer Renderer
	settings Settings
	clock    Clock
	log      *log.Logger
	rec      Recorder

	merge *packetMerger
	info  MediaInfo
	size  sizeTracker

	lastRefresh time.Time
	skipUntil   time.Duration
	ctx         context.Context
}

func newDecodeStage(st *State, cfg *Config) *DecodeStage {
	s := &DecodeStage{
		state:    st,
		dec:      cfg.Decoder,
		renderer: cfg.Renderer,
		settings: cfg.Settings,
		clock:    cfg.Clock,
		log:      cfg.Logger.With("stage", RoleDecode),
		rec:      cfg.Recorder,
		info:     cfg.Decoder.Info(),
	}
	s.merge = newPacketMerger(cfg.Decoder, func(src int, err error) {
		s.log.Warn("source ended early", "source", src, "err", err)
	})
	return s
}

// Run loops until ctx is cancelled. It keeps running after the sources are
// exhausted so that a later seek can resume decoding. Decode errors wrapping
// ErrSkip drop the packet; any other decode error stops the pipeline.
func (s *DecodeStage) Run(ctx context.Context) error {
	s.ctx = ctx
	if err := s.refreshSize(true); err != nil {
		return err
	}

	for ctx.Err() == nil {
		if gen := s.state.Frozen(); gen != 0 {
			s.state.Ack(RoleDecode, gen)
			_ = sleepCtx(ctx, freezePoll)
			continue
		}
		if s.state.Queue.Ended() {
			_ = sleepCtx(ctx, idlePoll)
			continue
		}
		if err := s.refreshSize(false); err != nil {
			s.log.Warn("resize failed", "err", err)
		}

		pkt, err := s.merge.Next()
		if errors.Is(err, io.EOF) {
			s.log.Debug("sources exhausted")
			s.state.Queue.MarkEnd()
			continue
		}

		ts := pkt.Timestamp()
		err = s.dec.Decode(pkt, s)
		pkt.Free()
		switch {
		case err == nil:
		case errors.Is(err, ErrFrozen):
			// the rest of the packet is discarded by the reset
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrSkip):
			s.rec.DecodeError()
			s.log.Debug("packet skipped", "ts", ts, "err", err)
		default:
			s.rec.DecodeError()
			s.log.Error("decode failed", "ts", ts, "err", err)
			return fmt.Errorf("decode at %s: %w", ts, err)
		}
	}
	return nil
}

// refreshSize re-measures the renderer at most every refreshPeriod and
// retargets the decoder once a new size has settled.
func (s *DecodeStage) refreshSize(force bool) error {
	now := s.clock.Now()
	if !force && now.Sub(s.lastRefresh) < refreshPeriod {
		return nil
	}
	s.lastRefresh = now

	avail, err := s.renderer.MeasureGrid()
	if err != nil {
		if !force {
			return err
		}
		avail = GridSize{Cols: 80, Rows: 24}
	}
	cols, rows := FitGrid(s.info.Width, s.info.Height, avail, s.settings)
	if !s.size.observe(cols, rows) {
		return nil
	}
	s.log.Debug("grid size", "cols", cols, "rows", rows)
	return s.dec.SetTarget(Target{
		Width:   cols,
		Height:  rows,
		Scaling: s.settings.Scaling,
		Format:  s.settings.pixelFormat(),
	})
}

// seek repositions the decoder. Only called while the stage is frozen.
func (s *DecodeStage) seek(ts time.Duration) error {
	s.merge.Reset()
	s.skipUntil = ts
	return s.dec.Seek(ts)
}

// Video implements Sink.
func (s *DecodeStage) Video(ts time.Duration, img grid.Image) error {
	if ts < s.skipUntil {
		return nil
	}
	f, err := s.state.Queue.Acquire(s.ctx, StageFree)
	if err != nil {
		return err
	}
	f.loadVideo(ts, img)
	s.state.Queue.Release(StageLoaded)
	s.rec.FrameDecoded(false)
	s.rec.QueueDepth(s.state.Queue.Len())
	return nil
}

// Audio implements Sink.
func (s *DecodeStage) Audio(ts time.Duration, samples []int16) error {
	if s.settings.NoAudio || ts < s.skipUntil || len(samples) == 0 {
		return nil
	}
	f, err := s.state.Queue.Acquire(s.ctx, StageFree)
	if err != nil {
		return err
	}
	f.loadAudio(ts, samples)
	s.state.Queue.Release(StageLoaded)
	s.rec.FrameDecoded(true)
	return nil
}
