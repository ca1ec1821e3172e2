package pipeline

import (
	"errors"
	"io"
)

// packetMerger interleaves the packets of every decoder source by
// timestamp. It keeps one look-ahead packet per source and always yields
// the smallest head, so sources that are individually ordered produce one
// ordered stream. Ties go to the lower source index.
type packetMerger struct {
	dec   Decoder
	heads []Packet
	done  []bool

	// onError is called when a source ends on something other than io.EOF.
	onError func(src int, err error)
}

func newPacketMerger(dec Decoder, onError func(int, error)) *packetMerger {
	n := dec.Sources()
	return &packetMerger{
		dec:     dec,
		heads:   make([]Packet, n),
		done:    make([]bool, n),
		onError: onError,
	}
}

// Next returns the next packet in timestamp order, or io.EOF once every
// source is exhausted. A read error ends that source only.
func (m *packetMerger) Next() (Packet, error) {
	for i := range m.heads {
		if m.heads[i] != nil || m.done[i] {
			continue
		}
		pkt, err := m.dec.ReadPacket(i)
		if err != nil {
			m.done[i] = true
			if !errors.Is(err, io.EOF) && m.onError != nil {
				m.onError(i, err)
			}
			continue
		}
		m.heads[i] = pkt
	}

	best := -1
	for i, h := range m.heads {
		if h == nil {
			continue
		}
		if best < 0 || h.Timestamp() < m.heads[best].Timestamp() {
			best = i
		}
	}
	if best < 0 {
		return nil, io.EOF
	}
	pkt := m.heads[best]
	m.heads[best] = nil
	return pkt, nil
}

// Reset frees the look-ahead packets and re-arms every source.
func (m *packetMerger) Reset() {
	for i, h := range m.heads {
		if h != nil {
			h.Free()
			m.heads[i] = nil
		}
		m.done[i] = false
	}
}
