package sim

import (
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/revolute.go/pkg/bus"
)

// MasterPort is the master node's end of the bus: a frame-level
// send/expect surface over the root wire, for tests and consoles. Only
// the master's wire behavior lives here; scheduling and persistence of a
// real master are someone else's problem.
type MasterPort struct {
	b      *Bus
	wire   *Wire
	recvCh chan byte
	parser bus.Parser
}

// NewMasterPort attaches a master endpoint to a wire.
func NewMasterPort(b *Bus, wire *Wire) *MasterPort {
	p := &MasterPort{
		b:      b,
		wire:   wire,
		recvCh: make(chan byte, 1024),
	}
	b.Attach(wire, p)
	return p
}

// Name implements Endpoint.
func (p *MasterPort) Name() string {
	return "master"
}

// Receive implements Endpoint. The buffer is generous; a master that
// falls this far behind has lost the bytes on real hardware too.
func (p *MasterPort) Receive(b byte) {
	select {
	case p.recvCh <- b:
	default:
	}
}

// Send transmits one frame from the master.
func (p *MasterPort) Send(f bus.Frame) {
	glog.V(2).Infof("master: send %v", f)
	for _, b := range f.Bytes() {
		p.b.Inject(p.wire, p, b)
	}
}

// Expect waits for the next decoded frame, up to the timeout.
func (p *MasterPort) Expect(timeout time.Duration) (bus.Frame, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case b := <-p.recvCh:
			if f, ok := p.parser.Feed(b); ok {
				glog.V(2).Infof("master: recv %v", f)
				return f, true
			}
		case <-deadline:
			return bus.Frame{}, false
		}
	}
}

// ExpectType waits for the next frame of the given type, discarding
// others, up to the timeout.
func (p *MasterPort) ExpectType(typ bus.Type, timeout time.Duration) (bus.Frame, bool) {
	deadline := time.Now().Add(timeout)
	for {
		remain := time.Until(deadline)
		if remain <= 0 {
			return bus.Frame{}, false
		}
		f, ok := p.Expect(remain)
		if !ok {
			return bus.Frame{}, false
		}
		if f.Type == typ {
			return f, true
		}
	}
}

// Drain discards everything pending and resets the frame parser.
func (p *MasterPort) Drain() {
	p.parser.Reset()
	for {
		select {
		case <-p.recvCh:
		default:
			return
		}
	}
}

// Hello broadcasts a hello probe and collects the replies heard within
// the window.
func (p *MasterPort) Hello(window time.Duration) []bus.Frame {
	p.Drain()
	p.Send(bus.Frame{Src: bus.MasterID, Dst: bus.BroadcastID, Type: bus.Hello})
	var replies []bus.Frame
	deadline := time.Now().Add(window)
	for {
		remain := time.Until(deadline)
		if remain <= 0 {
			return replies
		}
		if f, ok := p.Expect(remain); ok {
			replies = append(replies, f)
		}
	}
}

// Assign assigns an ID to the unconfigured module currently in reach and
// waits for the acknowledgement.
func (p *MasterPort) Assign(dst, id byte, timeout time.Duration) bool {
	p.Drain()
	p.Send(bus.Frame{Src: bus.MasterID, Dst: dst, Type: bus.IDAssign, Param: id})
	f, ok := p.ExpectType(bus.IDAssignOK, timeout)
	return ok && f.Src == id
}

// Ping pings a module and waits for its echo.
func (p *MasterPort) Ping(id byte, timeout time.Duration) bool {
	p.Drain()
	p.Send(bus.Frame{Src: bus.MasterID, Dst: id, Type: bus.Ping})
	f, ok := p.ExpectType(bus.Ping, timeout)
	return ok && f.Src == id
}

// Clear clears one module's configuration, waiting for the
// acknowledgement, or every module's when dst is the broadcast ID
// (broadcast clears are not acknowledged).
func (p *MasterPort) Clear(dst byte, timeout time.Duration) bool {
	p.Drain()
	p.Send(bus.Frame{Src: bus.MasterID, Dst: dst, Type: bus.ClearConfig})
	if dst == bus.BroadcastID {
		return true
	}
	f, ok := p.ExpectType(bus.ConfigCleared, timeout)
	return ok && f.Src == dst
}

// Discover runs the master's enumerate-assign loop: probe with hellos,
// assign the next ID to whichever unconfigured module answered, repeat
// until a probe round turns up nobody new. Returns the assigned IDs in
// order.
func (p *MasterPort) Discover(window time.Duration) []byte {
	var assigned []byte
	next := byte(1)
	for next <= bus.MaxAssignedID {
		fresh := false
		for _, f := range p.Hello(window) {
			if f.Type != bus.Hello {
				continue
			}
			// A fresh module announces itself with the default ID; deeper
			// in the tree its announcement may be cut off when the parent
			// switches roles to forward, so the forwarded hello's port
			// letter is the reliable signal.
			if f.Src == bus.DefaultID || f.Param != 0 {
				fresh = true
			}
		}
		if !fresh {
			break
		}
		if !p.Assign(bus.DefaultID, next, window) {
			glog.Warningf("master: module did not take id %d", next)
			break
		}
		assigned = append(assigned, next)
		next++
		// Let the fresh module finish coupling its servo before the
		// next probe round.
		time.Sleep(window)
	}
	return assigned
}
