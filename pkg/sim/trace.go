package sim

import (
	"sync"

	"github.com/robotalks/revolute.go/pkg/bus"
)

// FrameMonitor decodes the module frames crossing the bus, keeping one
// parser per transmitting origin so interleaved transmissions don't
// corrupt each other. Servo packets and other non-frame bytes fall out
// of the start hunt.
type FrameMonitor struct {
	fn      func(origin string, f bus.Frame)
	lock    sync.Mutex
	parsers map[string]*bus.Parser
}

// NewFrameMonitor creates a FrameMonitor calling fn for each frame.
func NewFrameMonitor(fn func(origin string, f bus.Frame)) *FrameMonitor {
	return &FrameMonitor{fn: fn, parsers: make(map[string]*bus.Parser)}
}

// Feed implements Monitor.
func (m *FrameMonitor) Feed(origin string, b byte) {
	m.lock.Lock()
	p := m.parsers[origin]
	if p == nil {
		p = &bus.Parser{}
		m.parsers[origin] = p
	}
	f, ok := p.Feed(b)
	m.lock.Unlock()
	if ok {
		m.fn(origin, f)
	}
}
