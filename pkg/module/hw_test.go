package module

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/robotalks/revolute.go/pkg/hal"
)

// fakeHW is a scripted hal.Interface for driving the firmware core.
// Timers burn a fixed number of Idle calls before raising the timeout
// flag, so every polling loop terminates deterministically.
type fakeHW struct {
	flag hal.Flag

	lock     sync.Mutex
	role     hal.Role
	loaded   []hal.Role
	unloaded []hal.Role
	attaches []hal.BusAttach
	fifos    map[hal.Channel][]byte
	txBuf    map[hal.Channel][]byte
	led      bool
	display  byte

	fuse    int // idles left until the armed timer fires, -1 when unarmed
	fuseLen int
	started []hal.Timer
	stopped []hal.Timer
	idles   int
}

func newFakeHW() *fakeHW {
	return &fakeHW{
		fifos:   make(map[hal.Channel][]byte),
		txBuf:   make(map[hal.Channel][]byte),
		fuse:    -1,
		fuseLen: 8,
	}
}

func (h *fakeHW) push(ch hal.Channel, bytes ...byte) {
	h.lock.Lock()
	h.fifos[ch] = append(h.fifos[ch], bytes...)
	h.lock.Unlock()
}

func (h *fakeHW) tx(ch hal.Channel) []byte {
	h.lock.Lock()
	defer h.lock.Unlock()
	return append([]byte(nil), h.txBuf[ch]...)
}

func (h *fakeHW) LoadConfig(role hal.Role) {
	h.lock.Lock()
	h.role = role
	h.loaded = append(h.loaded, role)
	h.lock.Unlock()
}

func (h *fakeHW) UnloadConfig(role hal.Role) {
	h.lock.Lock()
	h.unloaded = append(h.unloaded, role)
	if h.role == role {
		h.role = hal.None
	}
	h.lock.Unlock()
}

func (h *fakeHW) ReadByte(ch hal.Channel) (byte, bool) {
	h.lock.Lock()
	defer h.lock.Unlock()
	q := h.fifos[ch]
	if len(q) == 0 {
		return 0, false
	}
	h.fifos[ch] = q[1:]
	return q[0], true
}

func (h *fakeHW) WriteByte(ch hal.Channel, b byte) {
	h.lock.Lock()
	h.txBuf[ch] = append(h.txBuf[ch], b)
	h.lock.Unlock()
}

func (h *fakeHW) TxComplete(hal.Channel) bool {
	return true
}

func (h *fakeHW) StartTimer(t hal.Timer) {
	h.lock.Lock()
	h.started = append(h.started, t)
	h.fuse = h.fuseLen
	h.lock.Unlock()
}

func (h *fakeHW) StopTimer(t hal.Timer) {
	h.lock.Lock()
	h.stopped = append(h.stopped, t)
	h.fuse = -1
	h.lock.Unlock()
}

func (h *fakeHW) Timeout() *hal.Flag {
	return &h.flag
}

func (h *fakeHW) QuiesceBus() {
	h.lock.Lock()
	h.attaches = append(h.attaches, hal.BusDetached)
	h.lock.Unlock()
}

func (h *fakeHW) AttachBus(mode hal.BusAttach) {
	h.lock.Lock()
	h.attaches = append(h.attaches, mode)
	h.lock.Unlock()
}

func (h *fakeHW) SetConfiguredLED(on bool) {
	h.lock.Lock()
	h.led = on
	h.lock.Unlock()
}

func (h *fakeHW) ShowServoID(id byte) {
	h.lock.Lock()
	if id >= 1 && id <= 6 {
		h.display = id
	}
	h.lock.Unlock()
}

func (h *fakeHW) Idle() {
	h.lock.Lock()
	h.idles++
	if h.fuse > 0 {
		h.fuse--
		if h.fuse == 0 {
			h.fuse = -1
			h.flag.Set()
		}
	}
	h.lock.Unlock()
	runtime.Gosched()
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// eventRecorder collects module events in order.
type eventRecorder struct {
	lock   sync.Mutex
	events []Event
}

func (r *eventRecorder) ModuleEvent(e Event) {
	r.lock.Lock()
	r.events = append(r.events, e)
	r.lock.Unlock()
}

func (r *eventRecorder) kinds() []EventKind {
	r.lock.Lock()
	defer r.lock.Unlock()
	var kinds []EventKind
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}
