package pipeline

import (
	"math"
	"sync/atomic"
	"time"
)

// Role identifies one of the three stage goroutines.
type Role int

const (
	RoleDecode Role = iota
	RoleEncode
	RoleOutput
	roleCount
)

func (r Role) String() string {
	switch r {
	case RoleDecode:
		return "decode"
	case RoleEncode:
		return "encode"
	case RoleOutput:
		return "output"
	}
	return "unknown"
}

// State is the shared context of one playback: the two queues plus every
// flag that crosses goroutine boundaries outside the slot protocol.
type State struct {
	Queue *FrameQueue
	Audio *AudioQueue

	// freeze is 0 while running, otherwise the generation of the pending
	// freeze request. Stages acknowledge by storing that generation, so a
	// late acknowledgment of an earlier request can never satisfy a later one.
	freeze atomic.Uint64
	acks   [roleCount]atomic.Uint64
	gen    uint64

	paused   atomic.Bool
	volume   atomic.Uint64
	position atomic.Int64
	target   atomic.Int64
}

// NewState allocates the queues for one playback.
func NewState(queueSize, audioSize int, poll time.Duration) *State {
	s := &State{
		Queue: NewFrameQueue(queueSize, poll),
		Audio: NewAudioQueue(audioSize),
	}
	s.Queue.freeze = &s.freeze
	s.target.Store(-1)
	s.SetVolume(1)
	return s
}

// Frozen returns the pending freeze generation, or 0.
func (s *State) Frozen() uint64 {
	return s.freeze.Load()
}

// Ack records that role stopped touching the queue for freeze gen.
func (s *State) Ack(role Role, gen uint64) {
	s.acks[role].Store(gen)
}

// AllAcked reports whether every stage acknowledged the pending freeze.
func (s *State) AllAcked() bool {
	gen := s.freeze.Load()
	if gen == 0 {
		return false
	}
	for i := range s.acks {
		if s.acks[i].Load() != gen {
			return false
		}
	}
	return true
}

// requestFreeze starts a new freeze generation. Callers serialize.
func (s *State) requestFreeze() uint64 {
	s.gen++
	s.freeze.Store(s.gen)
	return s.gen
}

// releaseFreeze lets the stages run again and clears the acknowledgments.
func (s *State) releaseFreeze() {
	s.freeze.Store(0)
	for i := range s.acks {
		s.acks[i].Store(0)
	}
}

// Paused reports whether output is paused.
func (s *State) Paused() bool {
	return s.paused.Load()
}

// SetPaused pauses or resumes output.
func (s *State) SetPaused(p bool) {
	s.paused.Store(p)
}

// Volume returns the current volume in [0,1].
func (s *State) Volume() float64 {
	return math.Float64frombits(s.volume.Load())
}

// SetVolume clamps v to [0,1] and stores it.
func (s *State) SetVolume(v float64) float64 {
	v = max(0, min(1, v))
	s.volume.Store(math.Float64bits(v))
	return v
}

// Position returns the timestamp of the last drawn video frame.
func (s *State) Position() time.Duration {
	return time.Duration(s.position.Load())
}

func (s *State) setPosition(ts time.Duration) {
	s.position.Store(int64(ts))
}

// SeekTarget returns the timestamp of the seek in progress, or -1.
func (s *State) SeekTarget() time.Duration {
	return time.Duration(s.target.Load())
}
