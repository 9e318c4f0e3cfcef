package module

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/revolute.go/pkg/hal"
	"github.com/robotalks/revolute.go/pkg/servo"
)

// statusBytes encodes a servo status packet the way the vendor emits it.
func statusBytes(src, errByte byte, params ...byte) []byte {
	length := byte(len(params)) + 2
	fields := append([]byte{src, length, errByte}, params...)
	pkt := append([]byte{servo.Start, servo.Start}, fields...)
	return append(pkt, servo.Checksum(fields...))
}

func TestFindServo(t *testing.T) {
	hw := newFakeHW()
	m := New(hw, NewConfig())
	rec := &eventRecorder{}
	m.SetListener(rec)

	// Phase A answer, then phase B answer.
	hw.push(hal.ChanServo, statusBytes(2, 0)...)
	hw.push(hal.ChanServo, statusBytes(2, 0, servo.StatusReturnRead)...)

	require.NoError(t, m.findServo(context.Background()))

	st := m.Snapshot()
	require.Equal(t, byte(2), st.ServoID)
	require.Equal(t, []EventKind{EventServoFound}, rec.kinds())
	require.Equal(t, hal.Wait, hw.role)

	// The first instruction out was a broadcast ping, the next a status
	// return level read of the discovered servo.
	raw := hw.tx(hal.ChanTx014)
	ping := servo.Ping(servo.BroadcastID).Bytes()
	read := servo.Read(2, servo.RegStatusReturn, 1).Bytes()
	require.Equal(t, ping, raw[:len(ping)])
	require.Equal(t, read, raw[len(ping):len(ping)+len(read)])
}

func TestFindServoIgnoresErrorStatus(t *testing.T) {
	hw := newFakeHW()
	m := New(hw, NewConfig())

	// An error-flagged reply is treated as silence; the clean one after
	// it wins within the same wait.
	hw.push(hal.ChanServo, statusBytes(7, 0x24)...)
	hw.push(hal.ChanServo, statusBytes(2, 0)...)
	hw.push(hal.ChanServo, statusBytes(2, 0, servo.StatusReturnRead)...)

	require.NoError(t, m.findServo(context.Background()))
	require.Equal(t, byte(2), m.Snapshot().ServoID)
}

func TestFindServoCanceled(t *testing.T) {
	hw := newFakeHW()
	m := New(hw, NewConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, m.findServo(ctx))
}

func TestReassignServo(t *testing.T) {
	m, hw, rec := newTestModule(t, State{ID: 3, Configured: true, ServoID: 1})
	hw.push(hal.ChanServo, statusBytes(3, 0)...)

	m.reassignServo(context.Background())

	require.Equal(t, byte(3), m.Snapshot().ServoID)
	require.Equal(t, []EventKind{EventServoReassigned}, rec.kinds())
	require.Equal(t, hal.Wait, hw.role)

	// The EEPROM write went to the servo's old ID, carrying the new one.
	raw := hw.tx(hal.ChanTx014)
	write := servo.Write(1, servo.RegID, 3).Bytes()
	require.Equal(t, write, raw[:len(write)])
	require.Contains(t, string(raw), string(servo.Ping(servo.BroadcastID).Bytes()))
}

func TestReassignServoSkipsForeignReply(t *testing.T) {
	m, hw, rec := newTestModule(t, State{ID: 3, Configured: true, ServoID: 1})
	// A reply from some other ID first; the confirming one follows.
	hw.push(hal.ChanServo, statusBytes(9, 0)...)
	hw.push(hal.ChanServo, statusBytes(3, 0)...)

	m.reassignServo(context.Background())

	require.Equal(t, byte(3), m.Snapshot().ServoID)
	require.Equal(t, []EventKind{EventServoReassigned}, rec.kinds())
}
