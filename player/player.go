package player

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/njyeung/conreel/pipeline"
)

// Config configures an AVPlayer.
type Config struct {
	Inputs   []string
	Filters  Filters
	Settings pipeline.Settings

	Renderer pipeline.Renderer
	Sink     pipeline.AudioSink
	Logger   *log.Logger
	Recorder pipeline.Recorder

	// Status, if set, receives short messages after user actions.
	Status func(msg string)

	// Open replaces the FFmpeg decoder, e.g. with a synthetic source.
	Open func() (Source, error)
}

func (c Config) open() (Source, error) {
	if c.Open != nil {
		return c.Open()
	}
	return OpenDecoder(c.Inputs, c.Filters, c.Settings.NoAudio || c.Sink == nil)
}

// AVPlayer plays one input set through the pipeline and forwards user
// controls to the running session.
type AVPlayer struct {
	cfg Config

	playMu    sync.Mutex
	sessionMu sync.Mutex
	session   *playSession
}

// NewAVPlayer returns a player for cfg.
func NewAVPlayer(cfg Config) *AVPlayer {
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	return &AVPlayer{cfg: cfg}
}

func (p *AVPlayer) setSession(s *playSession) {
	p.sessionMu.Lock()
	defer p.sessionMu.Unlock()
	p.session = s
}

func (p *AVPlayer) clearSession(s *playSession) {
	p.sessionMu.Lock()
	defer p.sessionMu.Unlock()
	if p.session == s {
		p.session = nil
	}
}

func (p *AVPlayer) withSession(fn func(*playSession)) {
	p.sessionMu.Lock()
	s := p.session
	p.sessionMu.Unlock()

	if s != nil {
		fn(s)
	}
}

// Play blocks until playback ends, fails, or ctx is cancelled.
func (p *AVPlayer) Play(ctx context.Context) error {
	p.playMu.Lock()
	defer p.playMu.Unlock()

	session, err := newPlaySession(p.cfg)
	if err != nil {
		return err
	}
	p.setSession(session)
	defer func() {
		p.clearSession(session)
		session.cleanup()
	}()

	return session.run(ctx)
}

// Stop ends the current playback.
func (p *AVPlayer) Stop() {
	p.withSession(func(s *playSession) {
		s.stop()
	})
}

// SeekBy moves playback by d and reports the new position.
func (p *AVPlayer) SeekBy(ctx context.Context, d time.Duration) error {
	var err error = pipeline.ErrClosed
	p.withSession(func(s *playSession) {
		err = s.pipe.SeekBy(ctx, d)
		if err == nil {
			p.status("▶ " + formatPosition(s.pipe.Position()))
		}
	})
	return err
}

// TogglePause pauses or resumes playback and reports the new state.
func (p *AVPlayer) TogglePause() bool {
	paused := false
	p.withSession(func(s *playSession) {
		paused = s.pipe.TogglePause()
		if paused {
			p.status("paused")
		} else {
			p.status("▶ " + formatPosition(s.pipe.Position()))
		}
	})
	return paused
}

// AdjustVolume changes the volume by delta and returns the new value.
func (p *AVPlayer) AdjustVolume(delta float64) float64 {
	vol := 0.0
	p.withSession(func(s *playSession) {
		vol = s.pipe.AdjustVolume(delta)
		p.status(fmt.Sprintf("vol %d%%", int(vol*100+0.5)))
	})
	return vol
}

// Position returns the timestamp of the last drawn frame.
func (p *AVPlayer) Position() time.Duration {
	var pos time.Duration
	p.withSession(func(s *playSession) {
		pos = s.pipe.Position()
	})
	return pos
}

func (p *AVPlayer) status(msg string) {
	if p.cfg.Status != nil {
		p.cfg.Status(msg)
	}
}

// formatPosition renders d as mm:ss, or h:mm:ss past the hour.
func formatPosition(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
