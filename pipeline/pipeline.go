package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// Config wires a Pipeline to its collaborators. Sink, Clock, Logger and
// Recorder are optional. Without a Sink audio is not decoded.
type Config struct {
	Settings Settings
	Decoder  Decoder
	Renderer Renderer
	Sink     AudioSink
	Clock    Clock
	Logger   *log.Logger
	Recorder Recorder
}

// Pipeline runs the decode, encode and output stages plus the audio pump
// over one shared State.
type Pipeline struct {
	state  *State
	decode *DecodeStage
	encode *EncodeStage
	output *OutputStage
	pump   *AudioPump
	seeker *SeekController
	sink   AudioSink
	done   chan struct{}
}

// New validates cfg and builds the stages.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Decoder == nil {
		return nil, errors.New("pipeline: no decoder")
	}
	if cfg.Renderer == nil {
		return nil, errors.New("pipeline: no renderer")
	}
	if len(cfg.Settings.Charset) == 0 {
		return nil, errors.New("pipeline: empty charset")
	}
	if cfg.Clock == nil {
		cfg.Clock = WallClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Settings.QueueSize == 0 {
		cfg.Settings.QueueSize = QueueSize
	}
	if cfg.Settings.AudioQueueSize == 0 {
		cfg.Settings.AudioQueueSize = AudioQueueSize
	}
	if cfg.Sink == nil {
		cfg.Settings.NoAudio = true
	}

	st := NewState(cfg.Settings.QueueSize, cfg.Settings.AudioQueueSize, cfg.Settings.Poll)
	st.SetVolume(cfg.Settings.Volume)

	p := &Pipeline{
		state:  st,
		decode: newDecodeStage(st, &cfg),
		encode: newEncodeStage(st, &cfg),
		output: newOutputStage(st, &cfg),
		sink:   cfg.Sink,
		done:   make(chan struct{}),
	}
	if !cfg.Settings.NoAudio {
		p.pump = &AudioPump{queue: st.Audio, sink: cfg.Sink, poll: st.Queue.poll}
	}
	p.seeker = &SeekController{
		state:  st,
		decode: p.decode,
		sink:   cfg.Sink,
		done:   p.done,
		log:    cfg.Logger.With("component", "seek"),
		rec:    cfg.Recorder,
	}
	return p, nil
}

// State exposes the shared playback state.
func (p *Pipeline) State() *State {
	return p.state
}

// Run plays until the queue drains after end of stream (returning nil),
// a stage fails, or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	defer close(p.done)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.decode.Run(ctx) })
	g.Go(func() error { return p.encode.Run(ctx) })
	g.Go(func() error { return p.output.Run(ctx) })
	if p.pump != nil {
		g.Go(func() error { return p.pump.Run(ctx) })
	}

	err := g.Wait()
	if errors.Is(err, ErrEndOfStream) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Done is closed when Run returns.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Seek jumps to ts and resumes playback.
func (p *Pipeline) Seek(ctx context.Context, ts time.Duration) error {
	p.SetPaused(false)
	return p.seeker.Seek(ctx, ts)
}

// SeekBy jumps d relative to the last drawn frame, or to the target of a
// seek still in progress.
func (p *Pipeline) SeekBy(ctx context.Context, d time.Duration) error {
	base := p.state.SeekTarget()
	if base < 0 {
		base = p.state.Position()
	}
	return p.Seek(ctx, base+d)
}

// TogglePause flips the pause state and returns the new value.
func (p *Pipeline) TogglePause() bool {
	paused := !p.state.Paused()
	p.SetPaused(paused)
	return paused
}

// SetPaused pauses or resumes output and tells the sink.
func (p *Pipeline) SetPaused(paused bool) {
	p.state.SetPaused(paused)
	if ps, ok := p.sink.(Pauser); ok {
		ps.SetPaused(paused)
	}
}

// Paused reports the pause state.
func (p *Pipeline) Paused() bool {
	return p.state.Paused()
}

// AdjustVolume adds delta to the volume and returns the clamped result.
func (p *Pipeline) AdjustVolume(delta float64) float64 {
	return p.state.SetVolume(p.state.Volume() + delta)
}

// Volume returns the live volume.
func (p *Pipeline) Volume() float64 {
	return p.state.Volume()
}

// Position returns the timestamp of the last drawn frame.
func (p *Pipeline) Position() time.Duration {
	return p.state.Position()
}

// AudioPump drains the AudioQueue into the sink.
type AudioPump struct {
	queue *AudioQueue
	sink  AudioSink
	poll  time.Duration
	buf   []int16
}

// Run loops until ctx is cancelled or the sink fails.
func (a *AudioPump) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		var ok bool
		a.buf, ok = a.queue.Pop(a.buf)
		if !ok {
			_ = sleepCtx(ctx, a.poll)
			continue
		}
		if err := a.sink.Write(ctx, a.buf); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("audio sink: %w", err)
		}
	}
	return nil
}
