package hal

import "sync/atomic"

// Role is one of the mutually exclusive UART configurations.
type Role int

// Roles. None is the cold-start state before any configuration has been
// loaded; switching out of None tears every known role down blindly.
const (
	None Role = iota
	Wait
	MyResponse
	Resp1
	Resp2
	Resp3
	Resp4
	HelloListen
	ServoInit
)

var roleNames = map[Role]string{
	None:        "none",
	Wait:        "wait",
	MyResponse:  "my-response",
	Resp1:       "resp1",
	Resp2:       "resp2",
	Resp3:       "resp3",
	Resp4:       "resp4",
	HelloListen: "hello-listen",
	ServoInit:   "servo-init",
}

// String returns the role's name.
func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return "role?"
}

// Roles enumerates every loadable role, for blind teardown.
var Roles = []Role{Wait, MyResponse, Resp1, Resp2, Resp3, Resp4, HelloListen, ServoInit}

// Timer returns the one-shot timer a role arms, if any. Wait is the only
// receive role without a timeout; it listens indefinitely.
func (r Role) Timer() (Timer, bool) {
	switch r {
	case MyResponse:
		return TimerSettle, true
	case Resp1:
		return TimerChild1, true
	case Resp2:
		return TimerChild2, true
	case Resp3:
		return TimerChild3, true
	case Resp4:
		return TimerChild4, true
	case HelloListen:
		return TimerHello, true
	case ServoInit:
		return TimerServo, true
	}
	return 0, false
}

// Channel is a logical byte channel of the active role.
type Channel int

// Channels. Receive channels buffer bytes only while a role that starts
// them is loaded; transmit channels fan out to the pin groups they cover.
const (
	// ChanWait receives master traffic on the upstream pin.
	ChanWait Channel = iota
	// ChanChild1..ChanChild4 receive from a downstream port, in the
	// Resp and HelloListen roles.
	ChanChild1
	ChanChild2
	ChanChild3
	ChanChild4
	// ChanServo receives servo status packets from the internal servo
	// line, in the ServoInit role.
	ChanServo
	// ChanTx014 transmits on pins 0, 1 and 4, and always on the
	// internal servo line.
	ChanTx014
	// ChanTx23 transmits on pins 2 and 3.
	ChanTx23

	NumChannels
)

// ChildChannel maps a downstream port letter ('A'..'D') to its receive
// channel.
func ChildChannel(port byte) (Channel, bool) {
	if port < 'A' || port > 'D' {
		return 0, false
	}
	return ChanChild1 + Channel(port-'A'), true
}

// Timer identifies one of the hardware one-shot timers. Every timer's
// interrupt handler does the same thing: set the shared timeout flag.
type Timer int

const (
	// TimerSettle paces the settlement delay before transmitting.
	TimerSettle Timer = iota
	TimerChild1
	TimerChild2
	TimerChild3
	TimerChild4
	TimerHello
	TimerServo

	NumTimers
)

// BusAttach selects which shared-bus pins are connected.
type BusAttach int

const (
	// BusDetached disconnects every pin, with lines driven high.
	BusDetached BusAttach = iota
	// BusRootOnly connects only the upstream pin.
	BusRootOnly
	// BusAll connects all five pins, joining them electrically.
	BusAll
)

// Interface is the capability set the firmware core consumes. All methods
// are called from the single firmware context; implementations may set
// the timeout flag asynchronously (the interrupt path) but must not call
// back into the core.
type Interface interface {
	// LoadConfig installs the peripheral layout of a role and starts
	// its receivers or transmitters, no parity.
	LoadConfig(Role)
	// UnloadConfig tears a role's peripherals down, stopping its timer
	// and discarding buffered bytes.
	UnloadConfig(Role)

	// ReadByte pops one byte from a receive channel, if available.
	ReadByte(Channel) (byte, bool)
	// WriteByte queues one byte on a transmit channel.
	WriteByte(Channel, byte)
	// TxComplete reports whether a transmit channel has drained.
	TxComplete(Channel) bool

	// StartTimer arms a one-shot timer; its expiry sets Timeout.
	StartTimer(Timer)
	// StopTimer disarms a timer without touching Timeout.
	StopTimer(Timer)
	// Timeout returns the shared timeout flag.
	Timeout() *Flag

	// QuiesceBus drives the shared pins high and detaches them,
	// preventing spurious start bits during reconfiguration.
	QuiesceBus()
	// AttachBus connects the shared pins per the given mode.
	AttachBus(BusAttach)

	// SetConfiguredLED drives the configured indicator.
	SetConfiguredLED(bool)
	// ShowServoID drives the six-pattern servo-ID display. IDs outside
	// 1..6 leave the display unchanged.
	ShowServoID(byte)

	// Idle yields the processor briefly inside polling loops.
	Idle()
}

// Flag is the shared timeout flag. Timers set it from their interrupt
// context; the firmware core polls and clears it. Atomic accesses stand
// in for the volatile cell of the original single-core target.
type Flag struct {
	v int32
}

// Set raises the flag.
func (f *Flag) Set() {
	atomic.StoreInt32(&f.v, 1)
}

// Clear lowers the flag.
func (f *Flag) Clear() {
	atomic.StoreInt32(&f.v, 0)
}

// IsSet reads the flag.
func (f *Flag) IsSet() bool {
	return atomic.LoadInt32(&f.v) != 0
}
