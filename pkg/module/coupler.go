package module

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/revolute.go/pkg/hal"
	"github.com/robotalks/revolute.go/pkg/servo"
)

const levelUnknown byte = 0xFF

// findServo couples to the attached servo: discover its ID by broadcast
// ping, then read back the status return level until it matches the
// configured one. Both phases retry forever (the module refuses to
// function without its servo) with a bounded number of attempts per
// pass. It leaves the module in the wait role.
func (m *Module) findServo(ctx context.Context) error {
	resetSent := false
	for m.servoID == servo.NoID {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := 0; i < m.conf.ServoAttempts && m.servoID == servo.NoID; i++ {
			if err := m.servoInstruction(ctx, servo.Ping(servo.BroadcastID)); err != nil {
				return err
			}
			err := m.awaitStatus(ctx, func(st servo.Status) bool {
				if st.Src <= servo.MaxID {
					m.setServoID(st.Src)
					m.notify(EventServoFound)
				}
				// Any non-error status ends this wait; an out-of-range
				// source just costs one attempt.
				return true
			})
			if err != nil {
				return err
			}
		}
		if m.servoID == servo.NoID && m.conf.ResetOnFail && !resetSent {
			// A factory reset widens the servo's response window enough
			// for the next discovery pass.
			resetSent = true
			glog.Warning("servo silent, broadcasting reset")
			if err := m.servoInstruction(ctx, servo.Reset(servo.BroadcastID)); err != nil {
				return err
			}
		}
	}

	forced := false
	level := levelUnknown
	for level != m.conf.StatusReturnLevel {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := 0; i < m.conf.ServoAttempts && level != m.conf.StatusReturnLevel; i++ {
			if err := m.servoInstruction(ctx, servo.Read(m.servoID, servo.RegStatusReturn, 1)); err != nil {
				return err
			}
			err := m.awaitStatus(ctx, func(st servo.Status) bool {
				if st.Param == m.conf.StatusReturnLevel {
					level = st.Param
				}
				return true
			})
			if err != nil {
				return err
			}
		}
		if level != m.conf.StatusReturnLevel && m.conf.ForceStatusReturn && !forced {
			forced = true
			glog.Warningf("forcing status return level to %d", m.conf.StatusReturnLevel)
			if err := m.servoInstruction(ctx, servo.Write(m.servoID, servo.RegStatusReturn, m.conf.StatusReturnLevel)); err != nil {
				return err
			}
		}
	}

	m.switchTo(ctx, hal.Wait)
	return ctx.Err()
}

// reassignServo rewrites the servo's EEPROM ID to match the module's
// assigned ID, confirming by broadcast ping. Retries forever, like
// discovery. Leaves the module in the wait role.
func (m *Module) reassignServo(ctx context.Context) {
	glog.V(1).Infof("reassigning servo %d -> %d", m.servoID, m.id)
	for m.id != m.servoID {
		if ctx.Err() != nil {
			return
		}
		if m.servoInstruction(ctx, servo.Write(m.servoID, servo.RegID, m.id)) != nil {
			return
		}
		for i := 0; i < m.conf.ServoAttempts && m.id != m.servoID; i++ {
			if m.servoInstruction(ctx, servo.Ping(servo.BroadcastID)) != nil {
				return
			}
			err := m.awaitStatus(ctx, func(st servo.Status) bool {
				if st.Src != m.id {
					// Not the ID we wrote; keep waiting this attempt out.
					return false
				}
				m.setServoID(m.id)
				m.notify(EventServoReassigned)
				return true
			})
			if err != nil {
				return
			}
		}
	}
	m.switchTo(ctx, hal.Wait)
}

// servoInstruction transmits one instruction packet to the servo and
// switches to the servo-init role to await the reply. The downstream
// ports are masked off for the write so children never hear servo
// traffic.
func (m *Module) servoInstruction(ctx context.Context, p servo.Packet) error {
	m.switchTo(ctx, hal.MyResponse)
	m.hw.AttachBus(hal.BusRootOnly)
	for _, b := range p.Bytes() {
		m.hw.WriteByte(hal.ChanTx014, b)
	}
	for !m.hw.TxComplete(hal.ChanTx014) {
		m.hw.Idle()
	}
	m.switchTo(ctx, hal.ServoInit)
	return ctx.Err()
}

// awaitStatus polls for servo status packets until the servo-init timer
// fires or accept consumes one. Error-flagged replies are treated as
// silence; accept decides whether a clean reply ends the wait. The timer
// is stopped and the timeout flag cleared before returning.
func (m *Module) awaitStatus(ctx context.Context, accept func(servo.Status) bool) error {
	for !m.timeout.IsSet() {
		if err := ctx.Err(); err != nil {
			return err
		}
		st, ok := m.readStatus(ctx)
		if !ok {
			m.hw.Idle()
			continue
		}
		if !st.OK() {
			continue
		}
		if accept(st) {
			break
		}
	}
	m.hw.StopTimer(hal.TimerServo)
	m.timeout.Clear()
	return nil
}

// readStatus polls the servo channel for a status packet, blocking for
// the remainder once a start byte has been seen.
func (m *Module) readStatus(ctx context.Context) (servo.Status, bool) {
	b, ok := m.hw.ReadByte(hal.ChanServo)
	if !ok {
		return servo.Status{}, false
	}
	m.status.Reset()
	m.status.Feed(b)
	if m.status.Hunting() {
		return servo.Status{}, false
	}
	for {
		b, ok := m.getByte(ctx, hal.ChanServo)
		if !ok {
			return servo.Status{}, false
		}
		if st, done := m.status.Feed(b); done {
			return st, true
		}
		if m.status.Hunting() {
			return servo.Status{}, false
		}
	}
}
