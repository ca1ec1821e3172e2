package pipeline

import (
	"context"
	"time"
)

// Clock is the time source used for pacing.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// WallClock is the real-time Clock.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

func (WallClock) Sleep(ctx context.Context, d time.Duration) error {
	return sleepCtx(ctx, d)
}

// pacer schedules video frame k of a run at start + k/fps. A run starts at
// the first frame after construction or reset, so resuming from pause does
// not try to catch up on the frames that were not drawn while paused.
type pacer struct {
	clock Clock
	fps   float64
	start time.Time
	count int64
}

func newPacer(c Clock, fps float64) *pacer {
	if fps <= 0 {
		fps = 30
	}
	return &pacer{clock: c, fps: fps}
}

// due returns the scheduled time of the next frame.
func (p *pacer) due() time.Time {
	return p.start.Add(time.Duration(float64(p.count) / p.fps * float64(time.Second)))
}

// wait sleeps until the next frame is due. It returns how late the frame
// is, or zero when it had to wait.
func (p *pacer) wait(ctx context.Context) (time.Duration, error) {
	now := p.clock.Now()
	if p.count == 0 {
		p.start = now
	}
	due := p.due()
	if d := due.Sub(now); d > 0 {
		return 0, p.clock.Sleep(ctx, d)
	}
	return now.Sub(due), nil
}

func (p *pacer) advance() {
	p.count++
}

func (p *pacer) reset() {
	p.count = 0
}
