// Package metrics exports playback counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline holds the playback metrics. It implements pipeline.Recorder.
type Pipeline struct {
	// Decode
	FramesDecoded *prometheus.CounterVec
	DecodeErrors  prometheus.Counter

	// Encode
	FramesEncoded  prometheus.Counter
	EncodeDuration prometheus.Histogram

	// Output
	FramesRendered prometheus.Counter
	FramesLate     prometheus.Counter
	Lateness       prometheus.Histogram
	Queue          prometheus.Gauge

	Seeks prometheus.Counter
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Pipeline {
	f := promauto.With(reg)
	return &Pipeline{
		FramesDecoded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conreel_frames_decoded_total",
				Help: "Total number of decoded units",
			},
			[]string{"type"}, // video or audio
		),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "conreel_decode_errors_total",
			Help: "Packets skipped after a decode failure",
		}),
		FramesEncoded: f.NewCounter(prometheus.CounterOpts{
			Name: "conreel_frames_encoded_total",
			Help: "Frames turned into glyph grids",
		}),
		EncodeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "conreel_encode_duration_seconds",
			Help:    "Time to encode one frame",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10), // 0.5ms to ~256ms
		}),
		FramesRendered: f.NewCounter(prometheus.CounterOpts{
			Name: "conreel_frames_rendered_total",
			Help: "Frames drawn to the terminal",
		}),
		FramesLate: f.NewCounter(prometheus.CounterOpts{
			Name: "conreel_frames_late_total",
			Help: "Frames drawn after their scheduled time",
		}),
		Lateness: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "conreel_frame_lateness_seconds",
			Help:    "How late late frames were drawn",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		Queue: f.NewGauge(prometheus.GaugeOpts{
			Name: "conreel_frame_queue_depth",
			Help: "Frames decoded but not yet drawn",
		}),
		Seeks: f.NewCounter(prometheus.CounterOpts{
			Name: "conreel_seeks_total",
			Help: "Completed seeks",
		}),
	}
}

func (p *Pipeline) FrameDecoded(audio bool) {
	if audio {
		p.FramesDecoded.WithLabelValues("audio").Inc()
		return
	}
	p.FramesDecoded.WithLabelValues("video").Inc()
}

func (p *Pipeline) DecodeError() { p.DecodeErrors.Inc() }

func (p *Pipeline) FrameEncoded(d time.Duration) {
	p.FramesEncoded.Inc()
	p.EncodeDuration.Observe(d.Seconds())
}

func (p *Pipeline) FrameRendered(late time.Duration) {
	p.FramesRendered.Inc()
	if late > 0 {
		p.FramesLate.Inc()
		p.Lateness.Observe(late.Seconds())
	}
}

func (p *Pipeline) Seek() { p.Seeks.Inc() }

func (p *Pipeline) QueueDepth(n int) { p.Queue.Set(float64(n)) }
