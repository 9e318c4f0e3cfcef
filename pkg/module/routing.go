package module

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/revolute.go/pkg/bus"
	"github.com/robotalks/revolute.go/pkg/hal"
)

// readCommand polls the wait channel for a frame. It returns immediately
// when the line is silent; once a start byte has been seen it blocks for
// the rest of the transmission. A lone start byte or stray noise is
// dropped and the reader stays in its role.
func (m *Module) readCommand(ctx context.Context) (bus.Frame, bool) {
	b, ok := m.hw.ReadByte(hal.ChanWait)
	if !ok {
		return bus.Frame{}, false
	}
	m.parser.Reset()
	m.parser.Feed(b)
	if m.parser.Hunting() {
		return bus.Frame{}, false
	}
	for {
		b, ok := m.getByte(ctx, hal.ChanWait)
		if !ok {
			return bus.Frame{}, false
		}
		if f, done := m.parser.Feed(b); done {
			return f, true
		}
		if m.parser.Hunting() {
			return bus.Frame{}, false
		}
	}
}

// takeAction interprets one master frame per the routing decision table.
func (m *Module) takeAction(ctx context.Context, f bus.Frame) {
	glog.V(2).Infof("frame: %v", f)
	switch f.Type {
	case bus.Hello:
		switch {
		case !m.configured:
			// Announce this module's presence.
			m.sayHello(ctx)
		case m.child == 0:
			// Probe the downstream ports; forward the hello with the
			// detecting port letter if a child spoke up.
			if m.childListen(ctx) {
				m.sayHello(ctx)
			}
		default:
			m.childResponse(ctx)
		}

	case bus.Ping:
		if f.Dst == m.id {
			m.respond(ctx, bus.Ping, 0)
		} else if f.Dst > m.id {
			m.childResponse(ctx)
		}

	case bus.IDAssign:
		if f.Dst == m.id {
			if !bus.ValidAssignedID(f.Param) {
				return
			}
			m.setAssigned(f.Param)
			m.respond(ctx, bus.IDAssignOK, 0)
			m.notify(EventConfigured)
			if m.id != m.servoID {
				m.reassignServo(ctx)
			}
		} else if f.Dst > m.id {
			m.childResponse(ctx)
		}

	case bus.ClearConfig:
		// Only a directly addressed clear is acknowledged; broadcasts
		// and upstream clears are obeyed silently. An upstream clear
		// invalidates this module's ID too, since assignment order
		// depended on the upstream ordering.
		if f.Dst == m.id {
			m.respond(ctx, bus.ConfigCleared, 0)
		}
		if f.Dst == bus.BroadcastID || f.Dst <= m.id {
			m.clearConfig()
		}

	default:
		// Unknown types are dropped.
	}
}

// respond emits one frame addressed to the master on both transmit
// groups, then returns to the wait role.
func (m *Module) respond(ctx context.Context, typ bus.Type, param byte) {
	m.switchTo(ctx, hal.MyResponse)
	m.transmit(bus.Frame{Src: m.id, Dst: bus.MasterID, Type: typ, Param: param})
	m.switchTo(ctx, hal.Wait)
}

// transmit writes the frame on both transmit groups and spins until both
// have drained.
func (m *Module) transmit(f bus.Frame) {
	for _, b := range f.Bytes() {
		m.hw.WriteByte(hal.ChanTx014, b)
		m.hw.WriteByte(hal.ChanTx23, b)
	}
	for !m.hw.TxComplete(hal.ChanTx014) {
		m.hw.Idle()
	}
	for !m.hw.TxComplete(hal.ChanTx23) {
		m.hw.Idle()
	}
}

// sayHello answers the master's hello. The param carries the downstream
// port letter when forwarding for a child, 0 when announcing ourselves.
func (m *Module) sayHello(ctx context.Context) {
	m.respond(ctx, bus.Hello, m.child)
}

// childListen probes all four downstream ports for the start of a hello.
// It returns true with CHILD recorded when one spoke up; on timeout it
// falls back to the wait role.
func (m *Module) childListen(ctx context.Context) bool {
	m.switchTo(ctx, hal.HelloListen)
	heard := false
	for !m.timeout.IsSet() && ctx.Err() == nil {
		if port, ok := m.helloReady(); ok {
			m.setChild(port)
			m.notify(EventChildFound)
			heard = true
			break
		}
		m.hw.Idle()
	}
	m.hw.StopTimer(hal.TimerHello)
	m.timeout.Clear()
	if !heard {
		m.switchTo(ctx, hal.Wait)
	}
	return heard
}

// helloReady checks the downstream channels for a start byte. Non-start
// noise is consumed and dropped.
func (m *Module) helloReady() (byte, bool) {
	for i := 0; i < 4; i++ {
		if b, ok := m.hw.ReadByte(hal.ChanChild1 + hal.Channel(i)); ok && b == bus.StartByte {
			return bus.PortA + byte(i), true
		}
	}
	return 0, false
}

// childResponse listens on the known child port until the child's
// transmission ends or the timer fires. It only observes the end byte:
// the child's reply propagates to the master on the shared bus by itself,
// through every attached module in between.
func (m *Module) childResponse(ctx context.Context) bool {
	ch, ok := hal.ChildChannel(m.child)
	if !ok {
		// No child recorded; nothing to listen to.
		return false
	}
	role := hal.Resp1 + hal.Role(m.child-bus.PortA)
	m.switchTo(ctx, role)
	responded := false
	for !m.timeout.IsSet() && ctx.Err() == nil {
		if b, ok := m.hw.ReadByte(ch); ok && b == bus.EndByte {
			responded = true
			break
		}
		m.hw.Idle()
	}
	if t, ok := role.Timer(); ok {
		m.hw.StopTimer(t)
	}
	m.timeout.Clear()
	m.switchTo(ctx, hal.Wait)
	return responded
}
