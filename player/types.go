package player

import (
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
)

func init() {
	// FFmpeg would otherwise print over the video
	astiav.SetLogLevel(astiav.LogLevelQuiet)
}

const (
	// AudioSampleRate is the rate all audio is resampled to.
	AudioSampleRate = 48000

	// AudioChannels is the interleaved channel count of resampled audio.
	AudioChannels = 2
)

// SetupError is a fatal failure while opening the sources. Call names the
// FFmpeg function that failed.
type SetupError struct {
	Call string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%v [%s]", e.Err, e.Call)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

func setupErr(call string, format string, args ...any) error {
	return &SetupError{Call: call, Err: fmt.Errorf(format, args...)}
}

type mediaKind int

const (
	kindVideo mediaKind = iota
	kindAudio
)

// packet is a demuxed packet of one source, implementing pipeline.Packet.
type packet struct {
	pkt  *astiav.Packet
	src  int
	kind mediaKind
	ts   time.Duration
}

func (p *packet) Source() int              { return p.src }
func (p *packet) Timestamp() time.Duration { return p.ts }
func (p *packet) Free()                    { p.pkt.Free() }

// toDuration converts a timestamp in tb units.
func toDuration(ts int64, tb astiav.Rational) time.Duration {
	if tb.Den() == 0 {
		return 0
	}
	return time.Duration(float64(ts) * float64(tb.Num()) / float64(tb.Den()) * float64(time.Second))
}
