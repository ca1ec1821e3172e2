package player

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/njyeung/conreel/pipeline"
)

// FilterGraph runs frames through a user supplied FFmpeg filter chain with
// one input and one output.
type FilterGraph struct {
	closer *astikit.Closer
	graph  *astiav.FilterGraph
	src    *astiav.BuffersrcFilterContext
	sink   *astiav.BuffersinkFilterContext
	out    *astiav.Frame
}

// videoFilterParams describes the frames entering a video graph.
type videoFilterParams struct {
	width, height int
	pixFmt        astiav.PixelFormat
	timeBase      astiav.Rational
}

// audioFilterParams describes the frames entering an audio graph.
type audioFilterParams struct {
	sampleFmt  astiav.SampleFormat
	layout     astiav.ChannelLayout
	sampleRate int
	timeBase   astiav.Rational
}

func newVideoFilterGraph(desc string, p videoFilterParams) (*FilterGraph, error) {
	return newFilterGraph(desc, "buffer", "buffersink", func(params *astiav.BuffersrcFilterContextParameters) {
		params.SetWidth(p.width)
		params.SetHeight(p.height)
		params.SetPixelFormat(p.pixFmt)
		params.SetTimeBase(p.timeBase)
	})
}

func newAudioFilterGraph(desc string, p audioFilterParams) (*FilterGraph, error) {
	return newFilterGraph(desc, "abuffer", "abuffersink", func(params *astiav.BuffersrcFilterContextParameters) {
		params.SetSampleFormat(p.sampleFmt)
		params.SetChannelLayout(p.layout)
		params.SetSampleRate(p.sampleRate)
		params.SetTimeBase(p.timeBase)
	})
}

func newFilterGraph(desc, srcName, sinkName string, configure func(*astiav.BuffersrcFilterContextParameters)) (*FilterGraph, error) {
	g := &FilterGraph{closer: astikit.NewCloser()}
	ok := false
	defer func() {
		if !ok {
			g.Close()
		}
	}()

	if g.graph = astiav.AllocFilterGraph(); g.graph == nil {
		return nil, setupErr("avfilter_graph_alloc", "filter: graph is nil")
	}
	g.closer.Add(g.graph.Free)

	buffersrc := astiav.FindFilterByName(srcName)
	if buffersrc == nil {
		return nil, setupErr("avfilter_get_by_name", "filter: %s not found", srcName)
	}
	buffersink := astiav.FindFilterByName(sinkName)
	if buffersink == nil {
		return nil, setupErr("avfilter_get_by_name", "filter: %s not found", sinkName)
	}

	var err error
	if g.src, err = g.graph.NewBuffersrcFilterContext(buffersrc, "in"); err != nil {
		return nil, setupErr("avfilter_graph_alloc_filter", "filter: creating buffersrc context failed: %w", err)
	}
	if g.sink, err = g.graph.NewBuffersinkFilterContext(buffersink, "out"); err != nil {
		return nil, setupErr("avfilter_graph_alloc_filter", "filter: creating buffersink context failed: %w", err)
	}

	params := astiav.AllocBuffersrcFilterContextParameters()
	defer params.Free()
	configure(params)
	if err := g.src.SetParameters(params); err != nil {
		return nil, setupErr("av_buffersrc_parameters_set", "filter: setting buffersrc parameters failed: %w", err)
	}
	if err := g.src.Initialize(nil); err != nil {
		return nil, setupErr("avfilter_init_dict", "filter: initializing buffersrc failed: %w", err)
	}

	outputs := astiav.AllocFilterInOut()
	if outputs == nil {
		return nil, setupErr("avfilter_inout_alloc", "filter: outputs is nil")
	}
	defer outputs.Free()
	inputs := astiav.AllocFilterInOut()
	if inputs == nil {
		return nil, setupErr("avfilter_inout_alloc", "filter: inputs is nil")
	}
	defer inputs.Free()

	outputs.SetName("in")
	outputs.SetFilterContext(g.src.FilterContext())
	outputs.SetPadIdx(0)
	outputs.SetNext(nil)

	inputs.SetName("out")
	inputs.SetFilterContext(g.sink.FilterContext())
	inputs.SetPadIdx(0)
	inputs.SetNext(nil)

	if err := g.graph.Parse(desc, inputs, outputs); err != nil {
		return nil, setupErr("avfilter_graph_parse_ptr", "filter: parsing %q failed: %w", desc, err)
	}
	if err := g.graph.Configure(); err != nil {
		return nil, setupErr("avfilter_graph_config", "filter: configuring %q failed: %w", desc, err)
	}

	g.out = astiav.AllocFrame()
	g.closer.Add(g.out.Free)
	ok = true
	return g, nil
}

// Filter pushes f into the graph and calls fn for every frame the graph
// releases. The frame passed to fn is only valid during the call.
func (g *FilterGraph) Filter(f *astiav.Frame, fn func(*astiav.Frame) error) error {
	if err := g.src.AddFrame(f, astiav.NewBuffersrcFlags(astiav.BuffersrcFlagKeepRef)); err != nil {
		return fmt.Errorf("filter: adding frame failed: %w: %w", pipeline.ErrSkip, err)
	}
	for {
		if err := g.sink.GetFrame(g.out, astiav.NewBuffersinkFlags()); err != nil {
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
				return nil
			}
			return fmt.Errorf("filter: getting frame failed: %w: %w", pipeline.ErrSkip, err)
		}
		err := fn(g.out)
		g.out.Unref()
		if err != nil {
			return err
		}
	}
}

// Close frees the graph.
func (g *FilterGraph) Close() {
	if g == nil {
		return
	}
	g.closer.Close()
}
