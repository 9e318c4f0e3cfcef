package module

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/revolute.go/pkg/bus"
	"github.com/robotalks/revolute.go/pkg/hal"
	"github.com/robotalks/revolute.go/pkg/servo"
)

// State is a snapshot of the module's process-wide state.
type State struct {
	// ID is the logical identity, bus.DefaultID until assigned.
	ID byte
	// Configured is true once the master acknowledged this module.
	Configured bool
	// Child is the downstream port letter a hello was heard on, 0 if none.
	Child byte
	// ServoID is the attached servo's ID, servo.NoID until discovered.
	ServoID byte
}

// EventKind classifies a state change.
type EventKind int

const (
	// EventServoFound fires when discovery learned the servo's ID.
	EventServoFound EventKind = iota
	// EventConfigured fires when the master assigned an ID.
	EventConfigured
	// EventConfigCleared fires when the configuration was cleared.
	EventConfigCleared
	// EventChildFound fires when a hello was heard on a downstream port.
	EventChildFound
	// EventServoReassigned fires when the servo's EEPROM ID was rewritten
	// to match the module's.
	EventServoReassigned
)

var eventNames = map[EventKind]string{
	EventServoFound:      "servo-found",
	EventConfigured:      "configured",
	EventConfigCleared:   "config-cleared",
	EventChildFound:      "child-found",
	EventServoReassigned: "servo-reassigned",
}

// String returns the event kind's name.
func (k EventKind) String() string {
	if s, ok := eventNames[k]; ok {
		return s
	}
	return "event?"
}

// Event is one state change notification.
type Event struct {
	Kind  EventKind
	State State
}

// Listener receives state change events. Calls are made from the module's
// goroutine and must not block.
type Listener interface {
	ModuleEvent(Event)
}

// ListenerFunc is the func form of Listener.
type ListenerFunc func(Event)

// ModuleEvent implements Listener.
func (f ListenerFunc) ModuleEvent(e Event) {
	f(e)
}

// Module is one revolute module's firmware core.
type Module struct {
	conf    Config
	hw      hal.Interface
	timeout *hal.Flag

	// state is the currently published UART role, owned by the role
	// controller.
	state hal.Role

	parser bus.Parser
	status servo.StatusParser

	lock       sync.Mutex
	listener   Listener
	id         byte
	configured bool
	child      byte
	servoID    byte
}

// New creates a Module over the given hardware.
func New(hw hal.Interface, conf Config) *Module {
	if conf.ServoAttempts <= 0 {
		conf.ServoAttempts = defaultConfig.ServoAttempts
	}
	return &Module{
		conf:    conf,
		hw:      hw,
		timeout: hw.Timeout(),
		id:      bus.DefaultID,
		servoID: servo.NoID,
	}
}

// SetListener installs the state change listener.
func (m *Module) SetListener(ln Listener) {
	m.lock.Lock()
	m.listener = ln
	m.lock.Unlock()
}

// Snapshot returns the current state.
func (m *Module) Snapshot() State {
	m.lock.Lock()
	defer m.lock.Unlock()
	return State{ID: m.id, Configured: m.configured, Child: m.child, ServoID: m.servoID}
}

// Run implements framework.Runnable. It couples to the attached servo,
// then loops interpreting master frames until the context is canceled.
func (m *Module) Run(ctx context.Context) error {
	glog.V(1).Info("module starting, coupling to servo")
	if err := m.findServo(ctx); err != nil {
		return err
	}
	glog.V(1).Infof("servo coupled, id=%d", m.Snapshot().ServoID)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f, ok := m.readCommand(ctx); ok {
			m.takeAction(ctx, f)
		} else {
			m.hw.Idle()
		}
	}
}

func (m *Module) notify(kind EventKind) {
	m.lock.Lock()
	ln := m.listener
	st := State{ID: m.id, Configured: m.configured, Child: m.child, ServoID: m.servoID}
	m.lock.Unlock()
	glog.V(1).Infof("%v: id=%d configured=%v child=%q servo=%d",
		kind, st.ID, st.Configured, st.Child, st.ServoID)
	if ln != nil {
		ln.ModuleEvent(Event{Kind: kind, State: st})
	}
}

func (m *Module) setAssigned(id byte) {
	m.lock.Lock()
	m.id = id
	m.configured = true
	m.lock.Unlock()
}

func (m *Module) setChild(port byte) {
	m.lock.Lock()
	m.child = port
	m.lock.Unlock()
}

func (m *Module) setServoID(id byte) {
	m.lock.Lock()
	m.servoID = id
	m.lock.Unlock()
}

func (m *Module) clearConfig() {
	m.lock.Lock()
	m.id = bus.DefaultID
	m.configured = false
	m.child = 0
	m.lock.Unlock()
	m.hw.SetConfiguredLED(false)
	m.notify(EventConfigCleared)
}

// getByte blocks until a byte is available on the channel, the way the
// hardware's blocking read does. It gives up only on cancellation.
func (m *Module) getByte(ctx context.Context, ch hal.Channel) (byte, bool) {
	for {
		if b, ok := m.hw.ReadByte(ch); ok {
			return b, true
		}
		if ctx.Err() != nil {
			return 0, false
		}
		m.hw.Idle()
	}
}
