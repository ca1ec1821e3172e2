package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/njyeung/conreel/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startPipeline(t *testing.T, cfg Config) (*Pipeline, func() error) {
	t.Helper()
	p, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()

	var once sync.Once
	var runErr error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case runErr = <-errc:
			case <-time.After(5 * time.Second):
				t.Fatal("pipeline did not stop")
			}
		})
		return runErr
	}
	t.Cleanup(func() { _ = stop() })
	return p, stop
}

func waitDone(t *testing.T, p *Pipeline) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not finish")
	}
}

func TestPipelinePlaysInOrder(t *testing.T) {
	clock := newFakeClock()
	dec := newFakeDecoder(25, videoPackets(100, 25), audioPackets(200, 20*time.Millisecond))
	rend := &recordingRenderer{size: GridSize{Cols: 16, Rows: 9}, clock: clock}
	sink := &recordingSink{}

	p, stop := startPipeline(t, Config{
		Settings: testSettings(),
		Decoder:  dec,
		Renderer: rend,
		Sink:     sink,
		Clock:    clock,
	})
	waitDone(t, p)
	require.NoError(t, stop())

	draws := rend.snapshot()
	require.Len(t, draws, 100)
	for k, d := range draws {
		assert.Equal(t, time.Duration(k)*40*time.Millisecond, d.ts)
		assert.InDelta(t, float64(time.Duration(k)*40*time.Millisecond), float64(d.at.Sub(draws[0].at)), float64(time.Microsecond),
			"frame %d off schedule", k)
	}
	assert.Equal(t, 99*40*time.Millisecond, p.Position())

	writes := sink.snapshot()
	require.NotEmpty(t, writes)
	for i := 1; i < len(writes); i++ {
		assert.LessOrEqual(t, writes[i-1][0], writes[i][0], "audio out of order")
	}
}

func TestPipelineWithoutSinkDropsAudio(t *testing.T) {
	clock := newFakeClock()
	dec := newFakeDecoder(25, videoPackets(100, 25), audioPackets(200, 20*time.Millisecond))
	rend := &recordingRenderer{size: GridSize{Cols: 16, Rows: 9}, clock: clock}

	p, stop := startPipeline(t, Config{
		Settings: testSettings(),
		Decoder:  dec,
		Renderer: rend,
		Clock:    clock,
	})
	waitDone(t, p)
	require.NoError(t, stop())

	assert.Len(t, rend.snapshot(), 100)
	assert.Zero(t, p.State().Audio.Len())
}

func TestPipelineDecodeErrors(t *testing.T) {
	t.Run("skipped packet", func(t *testing.T) {
		dec := newFakeDecoder(25, videoPackets(10, 25))
		dec.fail = func(p *fakePacket) error {
			if p.ts == 80*time.Millisecond {
				return fmt.Errorf("corrupt packet: %w", ErrSkip)
			}
			return nil
		}
		rend := &recordingRenderer{size: GridSize{Cols: 8, Rows: 4}}
		p, stop := startPipeline(t, Config{Settings: testSettings(), Decoder: dec, Renderer: rend, Clock: newFakeClock()})
		waitDone(t, p)
		require.NoError(t, stop())
		assert.Len(t, rend.snapshot(), 9)
	})

	t.Run("fatal", func(t *testing.T) {
		broken := errors.New("cannot build filter graph")
		dec := newFakeDecoder(25, videoPackets(500, 25))
		dec.fail = func(p *fakePacket) error {
			if p.ts >= 200*time.Millisecond {
				return broken
			}
			return nil
		}
		rend := &recordingRenderer{size: GridSize{Cols: 8, Rows: 4}}
		p, stop := startPipeline(t, Config{Settings: testSettings(), Decoder: dec, Renderer: rend, Clock: newFakeClock()})
		waitDone(t, p)
		assert.ErrorIs(t, stop(), broken)
		assert.LessOrEqual(t, len(rend.snapshot()), 5)
	})
}

func TestPipelineResumeDoesNotBurst(t *testing.T) {
	clock := newFakeClock()
	dec := newFakeDecoder(25, videoPackets(30, 25))
	rend := &recordingRenderer{size: GridSize{Cols: 8, Rows: 4}, clock: clock}

	started := make(chan *Pipeline, 1)
	rend.onDraw = func(n int) {
		if n != 10 {
			return
		}
		p := <-started
		p.SetPaused(true)
		// ten frame intervals pass while paused
		clock.Advance(400 * time.Millisecond)
		go func() {
			time.Sleep(30 * time.Millisecond)
			p.SetPaused(false)
		}()
	}

	p, stop := startPipeline(t, Config{Settings: testSettings(), Decoder: dec, Renderer: rend, Clock: clock})
	started <- p
	waitDone(t, p)
	require.NoError(t, stop())

	draws := rend.snapshot()
	require.Len(t, draws, 30)
	us := float64(time.Microsecond)
	assert.InDelta(t, float64(400*time.Millisecond), float64(draws[10].at.Sub(draws[9].at)), us)
	for k := 11; k < len(draws); k++ {
		assert.InDelta(t, float64(40*time.Millisecond), float64(draws[k].at.Sub(draws[k-1].at)), us, "gap before frame %d", k)
	}
}

func TestPipelineBackpressure(t *testing.T) {
	dec := newFakeDecoder(25, videoPackets(20, 25))
	gate := make(chan struct{})
	rend := &recordingRenderer{size: GridSize{Cols: 8, Rows: 4}, gate: gate}
	s := testSettings()
	s.QueueSize = 4

	p, stop := startPipeline(t, Config{Settings: s, Decoder: dec, Renderer: rend, Clock: newFakeClock()})

	q := p.State().Queue
	require.Eventually(t, func() bool { return q.Len() == 3 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 3, q.Len(), "decoder must leave one slot free")

	close(gate)
	waitDone(t, p)
	require.NoError(t, stop())
	assert.Len(t, rend.snapshot(), 20)
}

func TestPipelineSixteenColorFrames(t *testing.T) {
	video := videoPackets(3, 25)
	video[0].color = [3]byte{255, 0, 0}
	video[1].color = [3]byte{0, 255, 0}
	video[2].color = [3]byte{0, 0, 255}
	dec := newFakeDecoder(25, video)
	rend := &recordingRenderer{size: GridSize{Cols: 4, Rows: 2, CellWidth: 10, CellHeight: 10}}

	s := testSettings()
	s.Color = grid.Color16
	s.Fill = true

	p, stop := startPipeline(t, Config{Settings: s, Decoder: dec, Renderer: rend, Clock: newFakeClock()})
	waitDone(t, p)
	require.NoError(t, stop())

	draws := rend.snapshot()
	require.Len(t, draws, 3)
	for i, d := range draws {
		c := video[i].color
		want := "\x1b[" + strconv.Itoa(grid.SGR16(grid.Quantize16(c[0], c[1], c[2]))) + "m"
		g := d.grid
		assert.Equal(t, 4, g.Cols)
		assert.Equal(t, 2, g.Rows)
		assert.Equal(t, 1, strings.Count(string(g.Data), "\x1b["), "flat frame needs a single color code")
		assert.True(t, strings.HasPrefix(string(g.Row(0)), want), "frame %d starts with %q", i, want)
		assert.NotContains(t, string(g.Data), "\n")
		assert.Equal(t, []RowRange{{0, 2}}, d.rows)
	}
}

func TestPipelineSeek(t *testing.T) {
	dec := newFakeDecoder(25, videoPackets(500, 25), audioPackets(1000, 20*time.Millisecond))
	dec.keyframe = time.Second
	rend := &recordingRenderer{size: GridSize{Cols: 8, Rows: 4}, delay: 2 * time.Millisecond}
	sink := &recordingSink{}

	p, stop := startPipeline(t, Config{
		Settings: testSettings(),
		Decoder:  dec,
		Renderer: rend,
		Sink:     sink,
		Clock:    newFakeClock(),
	})

	type snapshot struct {
		acked  bool
		cursor [3]int
		free   bool
		audio  int
		target time.Duration
	}
	var seen snapshot
	var n int
	dec.onSeek = func(ts time.Duration) {
		// nothing draws while the stages are frozen
		n = len(rend.snapshot())
		st := p.State()
		seen.acked = st.AllAcked()
		seen.cursor[0], seen.cursor[1], seen.cursor[2] = st.Queue.Cursors()
		seen.free = true
		for i := range st.Queue.Size() {
			seen.free = seen.free && st.Queue.StageAt(i) == StageFree
		}
		seen.audio = st.Audio.Len()
		seen.target = st.SeekTarget()
	}

	require.Eventually(t, func() bool { return len(rend.snapshot()) >= 10 }, 5*time.Second, time.Millisecond)
	require.NoError(t, p.Seek(context.Background(), 10*time.Second))

	assert.True(t, seen.acked, "every stage must be frozen")
	assert.Equal(t, [3]int{0, 0, 0}, seen.cursor)
	assert.True(t, seen.free)
	assert.Zero(t, seen.audio)
	assert.Equal(t, 10*time.Second, seen.target)
	assert.Equal(t, time.Duration(-1), p.State().SeekTarget())
	assert.GreaterOrEqual(t, p.Position(), 10*time.Second)

	require.Eventually(t, func() bool { return len(rend.snapshot()) >= n+5 }, 5*time.Second, time.Millisecond)
	draws := rend.snapshot()
	assert.Equal(t, 10*time.Second, draws[n].ts, "frames before the target are skipped")
	for i := n + 1; i < len(draws); i++ {
		assert.Greater(t, draws[i].ts, draws[i-1].ts)
	}

	sink.mu.Lock()
	assert.Equal(t, 1, sink.flushes)
	sink.mu.Unlock()
	require.NoError(t, stop())
}

func TestPipelineSeekAfterEnd(t *testing.T) {
	dec := newFakeDecoder(25, videoPackets(3, 25))
	rend := &recordingRenderer{size: GridSize{Cols: 8, Rows: 4}}
	p, stop := startPipeline(t, Config{Settings: testSettings(), Decoder: dec, Renderer: rend, Clock: newFakeClock()})
	waitDone(t, p)
	require.NoError(t, stop())

	assert.ErrorIs(t, p.Seek(context.Background(), 0), ErrClosed)
}

func TestPipelineControls(t *testing.T) {
	sink := &recordingSink{}
	p, err := New(Config{
		Settings: testSettings(),
		Decoder:  newFakeDecoder(25, videoPackets(1, 25)),
		Renderer: &recordingRenderer{},
		Sink:     sink,
	})
	require.NoError(t, err)

	assert.True(t, p.TogglePause())
	assert.True(t, p.Paused())
	assert.True(t, sink.paused)
	assert.False(t, p.TogglePause())
	assert.False(t, sink.paused)

	assert.Equal(t, 1.0, p.Volume())
	assert.InDelta(t, 0.95, p.AdjustVolume(-0.05), 1e-9)
	assert.Equal(t, 1.0, p.AdjustVolume(0.5))
	assert.Equal(t, 0.0, p.AdjustVolume(-3))
}

func TestNewRejectsMissingParts(t *testing.T) {
	_, err := New(Config{Settings: testSettings(), Renderer: &recordingRenderer{}})
	assert.Error(t, err)
	_, err = New(Config{Settings: testSettings(), Decoder: newFakeDecoder(25)})
	assert.Error(t, err)
}
