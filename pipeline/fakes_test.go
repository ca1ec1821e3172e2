package pipeline

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/njyeung/conreel/grid"
)

// fakePacket is one queued unit of a fakeDecoder source.
type fakePacket struct {
	src   int
	ts    time.Duration
	audio bool
	color [3]byte
	freed *atomic.Int64
}

func (p *fakePacket) Source() int              { return p.src }
func (p *fakePacket) Timestamp() time.Duration { return p.ts }
func (p *fakePacket) Free() {
	if p.freed != nil {
		p.freed.Add(1)
	}
}

// fakeDecoder replays fixed packet lists. Video packets decode to a solid
// image of the current target size.
type fakeDecoder struct {
	mu      sync.Mutex
	info    MediaInfo
	sources [][]fakePacket
	pos     []int
	target  Target
	targets []Target

	// keyframe is how far before the requested timestamp Seek lands.
	keyframe time.Duration
	onSeek   func(ts time.Duration)
	freed    atomic.Int64

	// fail, if set, can reject a packet before it is decoded.
	fail func(p *fakePacket) error
}

func newFakeDecoder(fps float64, sources ...[]fakePacket) *fakeDecoder {
	for s := range sources {
		for i := range sources[s] {
			sources[s][i].src = s
		}
	}
	return &fakeDecoder{
		info:    MediaInfo{Width: 160, Height: 90, FPS: fps},
		sources: sources,
		pos:     make([]int, len(sources)),
	}
}

// videoPackets returns n video packets spaced by 1/fps.
func videoPackets(n int, fps float64) []fakePacket {
	step := time.Duration(float64(time.Second) / fps)
	pkts := make([]fakePacket, n)
	for i := range pkts {
		pkts[i] = fakePacket{ts: time.Duration(i) * step, color: [3]byte{byte(i), 128, 200}}
	}
	return pkts
}

func audioPackets(n int, step time.Duration) []fakePacket {
	pkts := make([]fakePacket, n)
	for i := range pkts {
		pkts[i] = fakePacket{ts: time.Duration(i) * step, audio: true}
	}
	return pkts
}

func (d *fakeDecoder) Info() MediaInfo { return d.info }
func (d *fakeDecoder) Sources() int    { return len(d.sources) }

func (d *fakeDecoder) ReadPacket(src int) (Packet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pos[src] >= len(d.sources[src]) {
		return nil, io.EOF
	}
	p := d.sources[src][d.pos[src]]
	p.freed = &d.freed
	d.pos[src]++
	return &p, nil
}

func (d *fakeDecoder) Decode(pkt Packet, sink Sink) error {
	p := pkt.(*fakePacket)
	if d.fail != nil {
		if err := d.fail(p); err != nil {
			return err
		}
	}
	if p.audio {
		samples := make([]int16, 8)
		for i := range samples {
			samples[i] = int16(p.ts / time.Millisecond)
		}
		return sink.Audio(p.ts, samples)
	}

	d.mu.Lock()
	t := d.target
	d.mu.Unlock()
	w, h := max(t.Width, 1), max(t.Height, 1)
	bpp := t.Format.BytesPerPixel()
	pix := make([]byte, w*h*bpp)
	for i := 0; i < len(pix); i += bpp {
		copy(pix[i:i+bpp], p.color[:bpp])
	}
	return sink.Video(p.ts, grid.Image{Pix: pix, Stride: w * bpp, Width: w, Height: h, Format: t.Format})
}

func (d *fakeDecoder) SetTarget(t Target) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.target = t
	d.targets = append(d.targets, t)
	return nil
}

func (d *fakeDecoder) Seek(ts time.Duration) error {
	if d.onSeek != nil {
		d.onSeek(ts)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for s, pkts := range d.sources {
		d.pos[s] = len(pkts)
		for i, p := range pkts {
			if p.ts >= ts-d.keyframe {
				d.pos[s] = i
				break
			}
		}
	}
	return nil
}

type drawn struct {
	ts   time.Duration
	at   time.Time
	rows []RowRange
	data []byte
	grid Grid
}

// recordingRenderer keeps a copy of every drawn grid.
type recordingRenderer struct {
	mu    sync.Mutex
	size  GridSize
	draws []drawn
	clock Clock

	// delay is slept in real time on every Draw.
	delay time.Duration
	gate  chan struct{}

	// onDraw runs after every Draw with the number of draws so far.
	onDraw func(n int)
}

func (r *recordingRenderer) MeasureGrid() (GridSize, error) {
	return r.size, nil
}

func (r *recordingRenderer) Draw(g Grid, rows []RowRange) error {
	if r.gate != nil {
		<-r.gate
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	d := drawn{
		ts:   g.Timestamp,
		rows: append([]RowRange(nil), rows...),
		data: append([]byte(nil), g.Data...),
	}
	d.grid = g
	d.grid.Data = d.data
	d.grid.RowOffsets = append([]int(nil), g.RowOffsets...)
	if r.clock != nil {
		d.at = r.clock.Now()
	}
	r.mu.Lock()
	r.draws = append(r.draws, d)
	n := len(r.draws)
	r.mu.Unlock()
	if r.onDraw != nil {
		r.onDraw(n)
	}
	return nil
}

func (r *recordingRenderer) snapshot() []drawn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]drawn(nil), r.draws...)
}

// fakeClock only moves when Sleep or Advance is called.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingSink collects every written audio buffer.
type recordingSink struct {
	mu      sync.Mutex
	writes  [][]int16
	paused  bool
	flushes int
}

func (s *recordingSink) Write(_ context.Context, samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, append([]int16(nil), samples...))
	return nil
}

func (s *recordingSink) SetPaused(p bool) {
	s.mu.Lock()
	s.paused = p
	s.mu.Unlock()
}

func (s *recordingSink) Flush() {
	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
}

func (s *recordingSink) snapshot() [][]int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]int16(nil), s.writes...)
}

func testSettings() Settings {
	s := DefaultSettings()
	s.Poll = time.Millisecond
	s.Volume = 1
	return s
}
