package player

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/njyeung/conreel/pipeline"
)

// Filters are FFmpeg filter chains applied during decoding. Empty chains
// are skipped.
type Filters struct {
	Video       string // before scaling
	ScaledVideo string // after scaling
	Audio       string // before resampling
}

// AVDecoder implements pipeline.Decoder over a primary and an optional
// secondary input. Video comes from the first input that has it; audio
// from the first input that has it.
type AVDecoder struct {
	demuxers []*Demuxer

	video       *VideoDecoder
	videoSrc    int
	videoStream int

	audio       *AudioDecoder
	audioSrc    int
	audioStream int

	info pipeline.MediaInfo
}

// OpenDecoder opens one or two inputs.
func OpenDecoder(inputs []string, filters Filters, noAudio bool) (dec *AVDecoder, err error) {
	if len(inputs) == 0 || len(inputs) > 2 {
		return nil, fmt.Errorf("expected one or two inputs, got %d", len(inputs))
	}

	d := &AVDecoder{videoSrc: -1, audioSrc: -1}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	for _, in := range inputs {
		dm, err := NewDemuxer(in)
		if err != nil {
			return nil, err
		}
		d.demuxers = append(d.demuxers, dm)
	}

	for i, dm := range d.demuxers {
		if d.videoSrc < 0 && dm.VideoStream() != nil {
			d.videoSrc, d.videoStream = i, dm.VideoStream().Index()
		}
		if !noAudio && d.audioSrc < 0 && dm.AudioStream() != nil {
			d.audioSrc, d.audioStream = i, dm.AudioStream().Index()
		}
	}
	if d.videoSrc < 0 {
		return nil, setupErr("av_find_best_stream", "no video stream in %v", inputs)
	}

	vs := d.demuxers[d.videoSrc].VideoStream()
	if d.video, err = NewVideoDecoder(vs, filters.Video, filters.ScaledVideo); err != nil {
		return nil, err
	}
	if d.audioSrc >= 0 {
		if d.audio, err = NewAudioDecoder(d.demuxers[d.audioSrc].AudioStream(), filters.Audio); err != nil {
			return nil, err
		}
	}

	w, h := d.video.SourceSize()
	d.info = pipeline.MediaInfo{
		Width:    w,
		Height:   h,
		FPS:      d.demuxers[d.videoSrc].FrameRate(),
		Duration: d.demuxers[0].Duration(),
		HasAudio: d.audio != nil,
	}
	return d, nil
}

// Info implements pipeline.Decoder.
func (d *AVDecoder) Info() pipeline.MediaInfo {
	return d.info
}

// Sources implements pipeline.Decoder.
func (d *AVDecoder) Sources() int {
	return len(d.demuxers)
}

// ReadPacket implements pipeline.Decoder. Packets of streams that are not
// decoded are dropped here.
func (d *AVDecoder) ReadPacket(src int) (pipeline.Packet, error) {
	dm := d.demuxers[src]
	for {
		pkt, err := dm.ReadPacket()
		if err != nil {
			return nil, err
		}

		idx := pkt.StreamIndex()
		switch {
		case src == d.videoSrc && idx == d.videoStream:
			return d.wrap(pkt, src, kindVideo, dm.VideoStream()), nil
		case src == d.audioSrc && idx == d.audioStream:
			return d.wrap(pkt, src, kindAudio, dm.AudioStream()), nil
		}
		pkt.Free()
	}
}

func (d *AVDecoder) wrap(pkt *astiav.Packet, src int, kind mediaKind, st *astiav.Stream) *packet {
	ts := pkt.Pts()
	if ts == astiav.NoPtsValue {
		ts = pkt.Dts()
	}
	if ts == astiav.NoPtsValue {
		ts = 0
	}
	return &packet{pkt: pkt, src: src, kind: kind, ts: toDuration(ts, st.TimeBase())}
}

// Decode implements pipeline.Decoder.
func (d *AVDecoder) Decode(p pipeline.Packet, sink pipeline.Sink) error {
	pkt, ok := p.(*packet)
	if !ok {
		return fmt.Errorf("foreign packet %T: %w", p, pipeline.ErrSkip)
	}
	if pkt.kind == kindAudio {
		return d.audio.Decode(pkt.pkt, sink)
	}
	return d.video.Decode(pkt.pkt, sink)
}

// SetTarget implements pipeline.Decoder.
func (d *AVDecoder) SetTarget(t pipeline.Target) error {
	return d.video.SetTarget(t)
}

// Seek implements pipeline.Decoder.
func (d *AVDecoder) Seek(ts time.Duration) error {
	var errs []error
	for _, dm := range d.demuxers {
		if err := dm.Seek(ts); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.video.Reset(); err != nil {
		errs = append(errs, err)
	}
	if d.audio != nil {
		if err := d.audio.Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases every decoder and input.
func (d *AVDecoder) Close() error {
	if d.audio != nil {
		d.audio.Close()
		d.audio = nil
	}
	if d.video != nil {
		d.video.Close()
		d.video = nil
	}
	for _, dm := range d.demuxers {
		dm.Close()
	}
	d.demuxers = nil
	return nil
}

var _ pipeline.Decoder = (*AVDecoder)(nil)
var _ io.Closer = (*AVDecoder)(nil)
