package codec

import (
	"errors"
	"sync"
)

// poolSlots bounds scratch memory under sustained frame rate. Three
// buffers cover the encode concurrency the capture pool can sustain.
const poolSlots = 3

var ErrPoolExhausted = errors.New("codec: scratch pool exhausted")

// scratchPool is a fixed-capacity free-list of reusable scratch buffers,
// indexed by slot. Buffers grow to the largest frame seen and are never
// returned to the allocator.
type scratchPool struct {
	mu   sync.Mutex
	bufs [poolSlots][]byte
	used [poolSlots]bool
}

// acquire returns a free slot and its buffer grown to at least size
// bytes. ErrPoolExhausted means every slot is in flight and the frame
// should be dropped rather than allocated for.
func (p *scratchPool) acquire(size int) (int, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < poolSlots; i++ {
		if p.used[i] {
			continue
		}
		if cap(p.bufs[i]) < size {
			p.bufs[i] = make([]byte, size)
		}
		p.used[i] = true
		return i, p.bufs[i][:size], nil
	}
	return -1, nil, ErrPoolExhausted
}

func (p *scratchPool) release(slot int) {
	if slot < 0 || slot >= poolSlots {
		return
	}
	p.mu.Lock()
	p.used[slot] = false
	p.mu.Unlock()
}

// inFlight reports busy slots, for tests.
func (p *scratchPool) inFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for i := 0; i < poolSlots; i++ {
		if p.used[i] {
			n++
		}
	}
	return n
}
