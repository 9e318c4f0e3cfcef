// Package simhal provides an in-memory hal.Interface for host-side
// simulation and tests.
package simhal

import (
	"sync"
	"time"

	"github.com/robotalks/revolute.go/pkg/hal"
)

// Ports. The shared bus has the upstream port 0 and four downstream
// ports 1..4; the servo hangs on its own internal line, unaffected by
// the bus group-select.
const (
	NumBusPorts = 5
	PortServo   = 5
	NumPorts    = 6
)

// Config defines the simulated timer periods.
type Config struct {
	// Settle is the settlement delay before a transmission.
	Settle time.Duration
	// Child bounds a listen on a specific downstream port.
	Child time.Duration
	// Hello bounds the all-ports hello probe.
	Hello time.Duration
	// Servo bounds a wait for a servo status packet.
	Servo time.Duration
	// IdleStep is how long Idle yields.
	IdleStep time.Duration
}

var defaultConfig = Config{
	Settle:   time.Millisecond,
	Child:    20 * time.Millisecond,
	Hello:    20 * time.Millisecond,
	Servo:    20 * time.Millisecond,
	IdleStep: 100 * time.Microsecond,
}

// NewConfig creates the default configuration.
func NewConfig() Config {
	return defaultConfig
}

// HAL implements hal.Interface over pluggable byte ports.
type HAL struct {
	// Transmit is called for each byte leaving a connected pin.
	// Port 0 is upstream, 1..4 downstream. Set before use.
	Transmit func(port int, b byte)
	// OnAttach observes bus attach changes, if set.
	OnAttach func(hal.BusAttach)

	conf Config

	mu      sync.Mutex
	role    hal.Role
	attach  hal.BusAttach
	fifos   [hal.NumChannels][]byte
	timers  [hal.NumTimers]*time.Timer
	led     bool
	display byte

	flag hal.Flag
}

// New creates a HAL with the given timer configuration.
func New(conf Config) *HAL {
	if conf.IdleStep == 0 {
		conf.IdleStep = defaultConfig.IdleStep
	}
	return &HAL{conf: conf}
}

// rxChannel resolves which receive channel, if any, an inbound byte on
// the given port feeds under the currently loaded role.
func rxChannel(role hal.Role, port int) (hal.Channel, bool) {
	switch port {
	case 0:
		if role == hal.Wait {
			return hal.ChanWait, true
		}
	case PortServo:
		if role == hal.ServoInit {
			return hal.ChanServo, true
		}
	case 1, 2, 3, 4:
		child := hal.ChanChild1 + hal.Channel(port-1)
		if role == hal.HelloListen || role == hal.Resp1+hal.Role(port-1) {
			return child, true
		}
	}
	return 0, false
}

// roleChannels lists the receive channels a role starts.
func roleChannels(role hal.Role) []hal.Channel {
	switch role {
	case hal.Wait:
		return []hal.Channel{hal.ChanWait}
	case hal.Resp1, hal.Resp2, hal.Resp3, hal.Resp4:
		return []hal.Channel{hal.ChanChild1 + hal.Channel(role-hal.Resp1)}
	case hal.HelloListen:
		return []hal.Channel{hal.ChanChild1, hal.ChanChild2, hal.ChanChild3, hal.ChanChild4}
	case hal.ServoInit:
		return []hal.Channel{hal.ChanServo}
	}
	return nil
}

// txPorts lists the pins a transmit channel drives, narrowed by the
// current attach mode. The Tx014 group also feeds the internal servo
// line regardless of the bus attach.
func txPorts(ch hal.Channel, attach hal.BusAttach) []int {
	switch ch {
	case hal.ChanTx014:
		switch attach {
		case hal.BusDetached:
			return []int{PortServo}
		case hal.BusRootOnly:
			return []int{0, PortServo}
		}
		return []int{0, 1, 4, PortServo}
	case hal.ChanTx23:
		if attach == hal.BusAll {
			return []int{2, 3}
		}
	}
	return nil
}

// Deliver feeds one inbound byte arriving on a physical port. Bytes are
// buffered only when the loaded role has a receiver on that port and the
// port is attached; anything else is dropped on the floor, as the real
// line would be.
func (h *HAL) Deliver(port int, b byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case port == PortServo:
		// The internal servo line is always connected.
	case port == 0:
		if h.attach == hal.BusDetached {
			return
		}
	default:
		if h.attach != hal.BusAll {
			return
		}
	}
	if ch, ok := rxChannel(h.role, port); ok {
		h.fifos[ch] = append(h.fifos[ch], b)
	}
}

// LoadConfig implements hal.Interface.
func (h *HAL) LoadConfig(role hal.Role) {
	h.mu.Lock()
	h.role = role
	for _, ch := range roleChannels(role) {
		h.fifos[ch] = nil
	}
	h.mu.Unlock()
}

// UnloadConfig implements hal.Interface.
func (h *HAL) UnloadConfig(role hal.Role) {
	if t, ok := role.Timer(); ok {
		h.StopTimer(t)
	}
	h.mu.Lock()
	for _, ch := range roleChannels(role) {
		h.fifos[ch] = nil
	}
	if h.role == role {
		h.role = hal.None
	}
	h.mu.Unlock()
}

// ReadByte implements hal.Interface.
func (h *HAL) ReadByte(ch hal.Channel) (byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	q := h.fifos[ch]
	if len(q) == 0 {
		return 0, false
	}
	b := q[0]
	h.fifos[ch] = q[1:]
	return b, true
}

// WriteByte implements hal.Interface. Delivery is synchronous; the
// simulated line has no transit time.
func (h *HAL) WriteByte(ch hal.Channel, b byte) {
	h.mu.Lock()
	ports := txPorts(ch, h.attach)
	tx := h.Transmit
	h.mu.Unlock()
	if tx == nil {
		return
	}
	for _, port := range ports {
		tx(port, b)
	}
}

// TxComplete implements hal.Interface. Simulated writes drain instantly.
func (h *HAL) TxComplete(hal.Channel) bool {
	return true
}

func (h *HAL) timerPeriod(t hal.Timer) time.Duration {
	switch t {
	case hal.TimerSettle:
		return h.conf.Settle
	case hal.TimerHello:
		return h.conf.Hello
	case hal.TimerServo:
		return h.conf.Servo
	}
	return h.conf.Child
}

// StartTimer implements hal.Interface.
func (h *HAL) StartTimer(t hal.Timer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if tm := h.timers[t]; tm != nil {
		tm.Stop()
	}
	h.timers[t] = time.AfterFunc(h.timerPeriod(t), h.flag.Set)
}

// StopTimer implements hal.Interface.
func (h *HAL) StopTimer(t hal.Timer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if tm := h.timers[t]; tm != nil {
		tm.Stop()
		h.timers[t] = nil
	}
}

// Timeout implements hal.Interface.
func (h *HAL) Timeout() *hal.Flag {
	return &h.flag
}

// QuiesceBus implements hal.Interface.
func (h *HAL) QuiesceBus() {
	h.setAttach(hal.BusDetached)
}

// AttachBus implements hal.Interface.
func (h *HAL) AttachBus(mode hal.BusAttach) {
	h.setAttach(mode)
}

func (h *HAL) setAttach(mode hal.BusAttach) {
	h.mu.Lock()
	changed := h.attach != mode
	h.attach = mode
	cb := h.OnAttach
	h.mu.Unlock()
	if changed && cb != nil {
		cb(mode)
	}
}

// SetConfiguredLED implements hal.Interface.
func (h *HAL) SetConfiguredLED(on bool) {
	h.mu.Lock()
	h.led = on
	h.mu.Unlock()
}

// ShowServoID implements hal.Interface.
func (h *HAL) ShowServoID(id byte) {
	h.mu.Lock()
	if id >= 1 && id <= 6 {
		h.display = id
	}
	h.mu.Unlock()
}

// Idle implements hal.Interface.
func (h *HAL) Idle() {
	time.Sleep(h.conf.IdleStep)
}

// Role returns the currently loaded role.
func (h *HAL) Role() hal.Role {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.role
}

// Attach returns the current bus attach mode.
func (h *HAL) Attach() hal.BusAttach {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attach
}

// LED returns the configured-indicator state.
func (h *HAL) LED() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.led
}

// Display returns the last servo ID shown, 0 if never set.
func (h *HAL) Display() byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.display
}
