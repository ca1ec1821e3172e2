package player

import (
	"errors"
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/njyeung/conreel/grid"
	"github.com/njyeung/conreel/pipeline"
)

// VideoDecoder decodes one video stream and scales its frames to the
// pipeline target, running the optional pre- and post-scale filter chains.
type VideoDecoder struct {
	closer   *astikit.Closer
	stream   *astiav.Stream
	codecCtx *astiav.CodecContext
	frame    *astiav.Frame
	scaled   *astiav.Frame

	swsCtx *astiav.SoftwareScaleContext
	swsKey scaleKey

	target pipeline.Target

	vfDesc  string
	svfDesc string
	vf      *FilterGraph
	vfKey   scaleKey
	svf     *FilterGraph
	svfKey  scaleKey
}

// scaleKey identifies a scaler configuration.
type scaleKey struct {
	srcW, srcH int
	srcFmt     astiav.PixelFormat
	dst        pipeline.Target
}

// NewVideoDecoder opens a decoder for stream. vf filters source frames,
// svf filters scaled frames; either may be empty.
func NewVideoDecoder(stream *astiav.Stream, vf, svf string) (*VideoDecoder, error) {
	v := &VideoDecoder{
		closer:  astikit.NewCloser(),
		stream:  stream,
		vfDesc:  vf,
		svfDesc: svf,
	}
	if err := v.openCodec(); err != nil {
		v.Close()
		return nil, err
	}
	if err := v.checkFilters(); err != nil {
		v.Close()
		return nil, err
	}

	v.frame = astiav.AllocFrame()
	v.closer.Add(v.frame.Free)
	v.scaled = astiav.AllocFrame()
	v.closer.Add(v.scaled.Free)
	return v, nil
}

func (v *VideoDecoder) openCodec() error {
	params := v.stream.CodecParameters()
	codec := astiav.FindDecoder(params.CodecID())
	if codec == nil {
		return setupErr("avcodec_find_decoder", "video codec not found: %s", params.CodecID())
	}

	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return setupErr("avcodec_alloc_context3", "failed to allocate video codec context")
	}
	if err := params.ToCodecContext(cc); err != nil {
		cc.Free()
		return setupErr("avcodec_parameters_to_context", "failed to copy video codec params: %w", err)
	}
	if err := cc.Open(codec, nil); err != nil {
		cc.Free()
		return setupErr("avcodec_open2", "failed to open video codec: %w", err)
	}
	v.codecCtx = cc
	return nil
}

// checkFilters builds the filter chains against the coded picture so a bad
// chain fails before the first packet. The source chain is kept.
func (v *VideoDecoder) checkFilters() error {
	w, h := v.SourceSize()
	pixFmt := v.codecCtx.PixelFormat()
	if w <= 0 || h <= 0 || pixFmt == astiav.PixelFormatNone {
		// built from the first frame instead
		return nil
	}
	if v.vfDesc != "" {
		if err := v.ensureSourceFilter(w, h, pixFmt); err != nil {
			return err
		}
	}
	if v.svfDesc != "" {
		g, err := newVideoFilterGraph(postFilterDesc(v.svfDesc, astiav.PixelFormatRgb24), videoFilterParams{
			width:    w,
			height:   h,
			pixFmt:   astiav.PixelFormatRgb24,
			timeBase: v.stream.TimeBase(),
		})
		if err != nil {
			return err
		}
		g.Close()
	}
	return nil
}

// SourceSize returns the coded picture size.
func (v *VideoDecoder) SourceSize() (int, int) {
	p := v.stream.CodecParameters()
	return p.Width(), p.Height()
}

// SetTarget changes the size, format and scaling of later frames.
func (v *VideoDecoder) SetTarget(t pipeline.Target) error {
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("invalid video target %dx%d", t.Width, t.Height)
	}
	v.target = t
	return nil
}

// Reset drops every buffered frame. The codec is reopened because a
// decoder holding references to pre-seek frames would emit them again.
func (v *VideoDecoder) Reset() error {
	if v.codecCtx != nil {
		v.codecCtx.Free()
		v.codecCtx = nil
	}
	return v.openCodec()
}

// Decode decodes pkt and hands every resulting frame to sink.
func (v *VideoDecoder) Decode(pkt *astiav.Packet, sink pipeline.Sink) error {
	if err := v.codecCtx.SendPacket(pkt); err != nil {
		return fmt.Errorf("failed to send video packet: %w: %w", pipeline.ErrSkip, err)
	}

	for {
		if err := v.codecCtx.ReceiveFrame(v.frame); err != nil {
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
				return nil
			}
			return fmt.Errorf("failed to receive video frame: %w: %w", pipeline.ErrSkip, err)
		}

		ts := v.frameTime(v.frame, pkt)
		var err error
		if v.vfDesc != "" {
			err = v.filterSource(ts, sink)
		} else {
			err = v.scale(v.frame, ts, sink)
		}
		v.frame.Unref()
		if err != nil {
			return err
		}
	}
}

func (v *VideoDecoder) frameTime(f *astiav.Frame, pkt *astiav.Packet) time.Duration {
	pts := f.Pts()
	if pts == astiav.NoPtsValue {
		pts = pkt.Pts()
	}
	return toDuration(pts, v.stream.TimeBase())
}

// ensureSourceFilter (re)builds the pre-scale chain for frames of the given
// geometry.
func (v *VideoDecoder) ensureSourceFilter(w, h int, pixFmt astiav.PixelFormat) error {
	key := scaleKey{srcW: w, srcH: h, srcFmt: pixFmt}
	if v.vf != nil && key == v.vfKey {
		return nil
	}
	v.vf.Close()
	g, err := newVideoFilterGraph(v.vfDesc, videoFilterParams{
		width:    w,
		height:   h,
		pixFmt:   pixFmt,
		timeBase: v.stream.TimeBase(),
	})
	if err != nil {
		v.vf = nil
		return err
	}
	v.vf = g
	v.vfKey = key
	return nil
}

func (v *VideoDecoder) filterSource(ts time.Duration, sink pipeline.Sink) error {
	if err := v.ensureSourceFilter(v.frame.Width(), v.frame.Height(), v.frame.PixelFormat()); err != nil {
		return err
	}
	return v.vf.Filter(v.frame, func(f *astiav.Frame) error {
		return v.scale(f, ts, sink)
	})
}

// scale converts src to the target and emits it, through svf if set.
func (v *VideoDecoder) scale(src *astiav.Frame, ts time.Duration, sink pipeline.Sink) error {
	if v.target.Width == 0 {
		return nil
	}
	if err := v.ensureScaler(src); err != nil {
		return err
	}
	if err := v.swsCtx.ScaleFrame(src, v.scaled); err != nil {
		return fmt.Errorf("failed to scale frame: %w: %w", pipeline.ErrSkip, err)
	}

	if v.svfDesc == "" {
		return v.emit(v.scaled, ts, sink)
	}
	if err := v.ensurePostFilter(); err != nil {
		return err
	}
	return v.svf.Filter(v.scaled, func(f *astiav.Frame) error {
		return v.emit(f, ts, sink)
	})
}

func (v *VideoDecoder) ensureScaler(src *astiav.Frame) error {
	key := scaleKey{srcW: src.Width(), srcH: src.Height(), srcFmt: src.PixelFormat(), dst: v.target}
	if v.swsCtx != nil && key == v.swsKey {
		return nil
	}
	if v.swsCtx != nil {
		v.swsCtx.Free()
		v.swsCtx = nil
	}

	dstFmt := pixelFormat(v.target.Format)
	sws, err := astiav.CreateSoftwareScaleContext(
		key.srcW, key.srcH, key.srcFmt,
		v.target.Width, v.target.Height, dstFmt,
		astiav.NewSoftwareScaleContextFlags(scaleFlag(v.target.Scaling)),
	)
	if err != nil {
		return setupErr("sws_getContext", "failed to create sws context: %w", err)
	}
	v.swsCtx = sws
	v.swsKey = key

	v.scaled.Unref()
	v.scaled.SetWidth(v.target.Width)
	v.scaled.SetHeight(v.target.Height)
	v.scaled.SetPixelFormat(dstFmt)
	if err := v.scaled.AllocBuffer(1); err != nil {
		return setupErr("av_frame_get_buffer", "failed to allocate scaled frame buffer: %w", err)
	}
	return nil
}

func (v *VideoDecoder) ensurePostFilter() error {
	if v.svf != nil && v.svfKey == v.swsKey {
		return nil
	}
	v.svf.Close()
	g, err := newVideoFilterGraph(postFilterDesc(v.svfDesc, pixelFormat(v.target.Format)), videoFilterParams{
		width:    v.target.Width,
		height:   v.target.Height,
		pixFmt:   pixelFormat(v.target.Format),
		timeBase: v.stream.TimeBase(),
	})
	if err != nil {
		v.svf = nil
		return err
	}
	v.svf = g
	v.svfKey = v.swsKey
	return nil
}

// emit hands the packed pixels of f to sink.
func (v *VideoDecoder) emit(f *astiav.Frame, ts time.Duration, sink pipeline.Sink) error {
	pix, err := f.Data().Bytes(1)
	if err != nil {
		return fmt.Errorf("failed to get frame bytes: %w: %w", pipeline.ErrSkip, err)
	}
	format := v.target.Format
	return sink.Video(ts, grid.Image{
		Pix:    pix,
		Stride: f.Width() * format.BytesPerPixel(),
		Width:  f.Width(),
		Height: f.Height(),
		Format: format,
	})
}

// Close releases all resources.
func (v *VideoDecoder) Close() {
	if v.vf != nil {
		v.vf.Close()
		v.vf = nil
	}
	if v.svf != nil {
		v.svf.Close()
		v.svf = nil
	}
	if v.swsCtx != nil {
		v.swsCtx.Free()
		v.swsCtx = nil
	}
	if v.codecCtx != nil {
		v.codecCtx.Free()
		v.codecCtx = nil
	}
	v.closer.Close()
}

// postFilterDesc pins the output of a post-scale chain to the scaled format.
func postFilterDesc(desc string, f astiav.PixelFormat) string {
	return desc + ",format=pix_fmts=" + f.String()
}

func pixelFormat(f grid.PixelFormat) astiav.PixelFormat {
	if f == grid.Gray8 {
		return astiav.PixelFormatGray8
	}
	return astiav.PixelFormatRgb24
}

func scaleFlag(m pipeline.ScalingMode) astiav.SoftwareScaleContextFlag {
	switch m {
	case pipeline.ScaleNearest:
		return astiav.SoftwareScaleContextFlagPoint
	case pipeline.ScaleFastBilinear:
		return astiav.SoftwareScaleContextFlagFastBilinear
	case pipeline.ScaleBilinear:
		return astiav.SoftwareScaleContextFlagBilinear
	}
	return astiav.SoftwareScaleContextFlagBicubic
}
