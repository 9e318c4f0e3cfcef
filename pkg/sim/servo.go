package sim

import (
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/revolute.go/pkg/servo"
)

// ServoConfig defines a simulated servo's factory state.
type ServoConfig struct {
	// ID is the factory EEPROM ID.
	ID byte
	// StatusReturn is the factory status return level.
	StatusReturn byte
	// ReplyDelay is the turnaround before a status packet is emitted.
	ReplyDelay time.Duration
}

var defaultServoConfig = ServoConfig{
	ID:           1,
	StatusReturn: servo.StatusReturnRead,
	ReplyDelay:   2 * time.Millisecond,
}

// NewServoConfig creates the default factory state.
func NewServoConfig() ServoConfig {
	return defaultServoConfig
}

type servoParseState int

const (
	servoStart1 servoParseState = iota
	servoStart2
	servoID
	servoLength
	servoInstr
	servoParams
	servoChecksum
)

// Servo simulates the vendor smart servo attached inside a module. It
// parses instruction packets off its wire (checksum validated, unlike
// the trusting module side), honors PING/READ/WRITE/RESET against its
// ID and status-return registers, and emits status packets after a
// turnaround delay. On a single-servo line it answers broadcast pings,
// which is what module discovery depends on.
type Servo struct {
	bus  *Bus
	wire *Wire
	name string
	conf ServoConfig

	lock         sync.Mutex
	id           byte
	statusReturn byte

	state  servoParseState
	pktID  byte
	pktLen byte
	pktIns byte
	params []byte
}

// NewServo creates a Servo attached to the given wire.
func NewServo(bus *Bus, wire *Wire, name string, conf ServoConfig) *Servo {
	if conf.ReplyDelay == 0 {
		conf.ReplyDelay = defaultServoConfig.ReplyDelay
	}
	s := &Servo{
		bus:          bus,
		wire:         wire,
		name:         name,
		conf:         conf,
		id:           conf.ID,
		statusReturn: conf.StatusReturn,
	}
	bus.Attach(wire, s)
	return s
}

// Name implements Endpoint.
func (s *Servo) Name() string {
	return s.name
}

// ID returns the servo's current EEPROM ID.
func (s *Servo) ID() byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.id
}

// StatusReturn returns the servo's current status return level.
func (s *Servo) StatusReturn() byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.statusReturn
}

// Receive implements Endpoint, consuming the line byte by byte. Module
// frames and other noise on the shared line fall out of the start hunt.
func (s *Servo) Receive(b byte) {
	s.lock.Lock()
	defer s.lock.Unlock()
	switch s.state {
	case servoStart1:
		if b == servo.Start {
			s.state = servoStart2
		}
	case servoStart2:
		if b == servo.Start {
			s.state = servoID
		} else {
			s.state = servoStart1
		}
	case servoID:
		s.pktID = b
		s.state = servoLength
	case servoLength:
		if b < 2 {
			s.state = servoStart1
			break
		}
		s.pktLen = b
		s.state = servoInstr
	case servoInstr:
		s.pktIns = b
		s.params = s.params[:0]
		if s.pktLen == 2 {
			s.state = servoChecksum
		} else {
			s.state = servoParams
		}
	case servoParams:
		s.params = append(s.params, b)
		if byte(len(s.params)) == s.pktLen-2 {
			s.state = servoChecksum
		}
	case servoChecksum:
		s.state = servoStart1
		fields := append([]byte{s.pktID, s.pktLen, s.pktIns}, s.params...)
		if servo.Checksum(fields...) != b {
			glog.V(2).Infof("%s: bad checksum, packet dropped", s.name)
			break
		}
		s.handle()
	}
}

// handle acts on one validated instruction packet. Caller holds the lock.
func (s *Servo) handle() {
	broadcast := s.pktID == servo.BroadcastID
	if !broadcast && s.pktID != s.id {
		return
	}
	switch s.pktIns {
	case servo.InstrPing:
		s.reply(0)
	case servo.InstrRead:
		if len(s.params) < 2 || s.statusReturn < servo.StatusReturnRead || broadcast {
			return
		}
		addr, count := s.params[0], s.params[1]
		vals := make([]byte, count)
		for i := range vals {
			vals[i] = s.regRead(addr + byte(i))
		}
		s.reply(0, vals...)
	case servo.InstrWrite:
		if len(s.params) < 2 {
			return
		}
		s.regWrite(s.params[0], s.params[1])
		if !broadcast && s.statusReturn == servo.StatusReturnAll {
			s.reply(0)
		}
	case servo.InstrReset:
		s.id = s.conf.ID
		s.statusReturn = s.conf.StatusReturn
		if !broadcast && s.statusReturn == servo.StatusReturnAll {
			s.reply(0)
		}
	}
}

func (s *Servo) regRead(addr byte) byte {
	switch addr {
	case servo.RegID:
		return s.id
	case servo.RegStatusReturn:
		return s.statusReturn
	}
	return 0
}

func (s *Servo) regWrite(addr, val byte) {
	switch addr {
	case servo.RegID:
		glog.V(1).Infof("%s: id %d -> %d", s.name, s.id, val)
		s.id = val
	case servo.RegStatusReturn:
		s.statusReturn = val
	}
}

// reply schedules a status packet after the turnaround delay. Caller
// holds the lock; the injection happens from the timer goroutine.
func (s *Servo) reply(errByte byte, params ...byte) {
	length := byte(len(params)) + 2
	fields := append([]byte{s.id, length, errByte}, params...)
	pkt := append([]byte{servo.Start, servo.Start}, fields...)
	pkt = append(pkt, servo.Checksum(fields...))
	time.AfterFunc(s.conf.ReplyDelay, func() {
		for _, b := range pkt {
			s.bus.Inject(s.wire, s, b)
		}
	})
}
