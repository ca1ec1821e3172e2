package audio

import (
	"context"
	"fmt"
	"time"
)

// DefaultLatency is the device and sink buffer length.
const DefaultLatency = 50 * time.Millisecond

// Sink is an opened output device.
type Sink interface {
	Write(ctx context.Context, samples []int16) error
	SetPaused(paused bool)
	Flush()
	Close() error
}

// Backends lists the names accepted by Open.
var Backends = []string{"beep", "oto"}

// Open opens the named backend.
func Open(backend string, latency time.Duration) (Sink, error) {
	if latency <= 0 {
		latency = DefaultLatency
	}
	switch backend {
	case "", "beep":
		return NewBeepSink(latency)
	case "oto":
		return NewOtoSink(latency)
	}
	return nil, fmt.Errorf("audio: unknown backend %q", backend)
}
