package player

import (
	"errors"
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/njyeung/conreel/pipeline"
)

// AudioDecoder decodes one audio stream and resamples it to interleaved
// s16 stereo at AudioSampleRate.
type AudioDecoder struct {
	closer   *astikit.Closer
	stream   *astiav.Stream
	codecCtx *astiav.CodecContext
	swrCtx   *astiav.SoftwareResampleContext
	frame    *astiav.Frame
	out      *astiav.Frame

	afDesc string
	af     *FilterGraph
	afIn   audioFilterParams

	samples []int16
}

// NewAudioDecoder opens a decoder for stream. af filters decoded frames
// before resampling and may be empty.
func NewAudioDecoder(stream *astiav.Stream, af string) (*AudioDecoder, error) {
	a := &AudioDecoder{
		closer: astikit.NewCloser(),
		stream: stream,
		afDesc: af,
	}
	if err := a.openCodec(); err != nil {
		a.Close()
		return nil, err
	}
	if a.afDesc != "" && a.codecCtx.SampleRate() > 0 && a.codecCtx.ChannelLayout().Channels() > 0 {
		// fail on a bad chain before the first packet
		if err := a.ensureFilter(audioFilterParams{
			sampleFmt:  a.codecCtx.SampleFormat(),
			layout:     a.codecCtx.ChannelLayout(),
			sampleRate: a.codecCtx.SampleRate(),
			timeBase:   a.stream.TimeBase(),
		}); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.frame = astiav.AllocFrame()
	a.closer.Add(a.frame.Free)
	a.out = astiav.AllocFrame()
	a.closer.Add(a.out.Free)
	return a, nil
}

func (a *AudioDecoder) openCodec() error {
	params := a.stream.CodecParameters()
	codec := astiav.FindDecoder(params.CodecID())
	if codec == nil {
		return setupErr("avcodec_find_decoder", "audio codec not found: %s", params.CodecID())
	}

	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return setupErr("avcodec_alloc_context3", "failed to allocate audio codec context")
	}
	if err := params.ToCodecContext(cc); err != nil {
		cc.Free()
		return setupErr("avcodec_parameters_to_context", "failed to copy audio codec params: %w", err)
	}
	if err := cc.Open(codec, nil); err != nil {
		cc.Free()
		return setupErr("avcodec_open2", "failed to open audio codec: %w", err)
	}

	swr := astiav.AllocSoftwareResampleContext()
	if swr == nil {
		cc.Free()
		return setupErr("swr_alloc", "failed to allocate swr context")
	}
	a.codecCtx = cc
	a.swrCtx = swr
	return nil
}

// Reset drops buffered samples by reopening the codec and resampler.
func (a *AudioDecoder) Reset() error {
	a.freeCodec()
	return a.openCodec()
}

// Decode decodes pkt and hands the resampled audio of every resulting
// frame to sink.
func (a *AudioDecoder) Decode(pkt *astiav.Packet, sink pipeline.Sink) error {
	if err := a.codecCtx.SendPacket(pkt); err != nil {
		return fmt.Errorf("failed to send audio packet: %w: %w", pipeline.ErrSkip, err)
	}

	for {
		if err := a.codecCtx.ReceiveFrame(a.frame); err != nil {
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
				return nil
			}
			return fmt.Errorf("failed to receive audio frame: %w: %w", pipeline.ErrSkip, err)
		}

		pts := a.frame.Pts()
		if pts == astiav.NoPtsValue {
			pts = pkt.Pts()
		}
		ts := toDuration(pts, a.stream.TimeBase())

		var err error
		if a.afDesc != "" {
			err = a.filter(ts, sink)
		} else {
			err = a.resample(a.frame, ts, sink)
		}
		a.frame.Unref()
		if err != nil {
			return err
		}
	}
}

// ensureFilter (re)builds the audio chain when the input format changes.
func (a *AudioDecoder) ensureFilter(in audioFilterParams) error {
	if a.af != nil && in.sampleFmt == a.afIn.sampleFmt && in.sampleRate == a.afIn.sampleRate &&
		in.layout.Equal(a.afIn.layout) {
		return nil
	}
	a.af.Close()
	g, err := newAudioFilterGraph(a.afDesc, in)
	if err != nil {
		a.af = nil
		return err
	}
	a.af, a.afIn = g, in
	return nil
}

func (a *AudioDecoder) filter(ts time.Duration, sink pipeline.Sink) error {
	err := a.ensureFilter(audioFilterParams{
		sampleFmt:  a.frame.SampleFormat(),
		layout:     a.frame.ChannelLayout(),
		sampleRate: a.frame.SampleRate(),
		timeBase:   a.stream.TimeBase(),
	})
	if err != nil {
		return err
	}
	return a.af.Filter(a.frame, func(f *astiav.Frame) error {
		return a.resample(f, ts, sink)
	})
}

func (a *AudioDecoder) resample(in *astiav.Frame, ts time.Duration, sink pipeline.Sink) error {
	rate := max(in.SampleRate(), 1)
	capacity := in.NbSamples()*AudioSampleRate/rate + 256

	a.out.Unref()
	a.out.SetSampleFormat(astiav.SampleFormatS16)
	a.out.SetSampleRate(AudioSampleRate)
	a.out.SetChannelLayout(astiav.ChannelLayoutStereo)
	a.out.SetNbSamples(capacity)
	if err := a.out.AllocBuffer(0); err != nil {
		return fmt.Errorf("failed to allocate audio frame: %w: %w", pipeline.ErrSkip, err)
	}
	if err := a.swrCtx.ConvertFrame(in, a.out); err != nil {
		return fmt.Errorf("failed to resample audio: %w: %w", pipeline.ErrSkip, err)
	}

	n := a.out.NbSamples() * AudioChannels
	if n == 0 {
		return nil
	}
	plane, err := a.out.Data().Bytes(0)
	if err != nil || len(plane) < n*2 {
		return fmt.Errorf("short audio plane: %w", pipeline.ErrSkip)
	}

	// s16le, two bytes per sample
	if cap(a.samples) < n {
		a.samples = make([]int16, n)
	}
	a.samples = a.samples[:n]
	for i := range a.samples {
		a.samples[i] = int16(plane[2*i]) | int16(plane[2*i+1])<<8
	}
	return sink.Audio(ts, a.samples)
}

func (a *AudioDecoder) freeCodec() {
	if a.swrCtx != nil {
		a.swrCtx.Free()
		a.swrCtx = nil
	}
	if a.codecCtx != nil {
		a.codecCtx.Free()
		a.codecCtx = nil
	}
}

// Close releases all resources.
func (a *AudioDecoder) Close() {
	a.af.Close()
	a.af = nil
	a.freeCodec()
	a.closer.Close()
}
