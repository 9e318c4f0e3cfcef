package module

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/revolute.go/pkg/hal"
)

// switchTo reconfigures the single UART for a new role. The sequence is
// fixed: quiesce the shared pins, unload the outgoing configuration
// (blindly tearing down every role on the one-time cold start), load the
// new one, arm its timer, and publish. Entering MyResponse additionally
// blocks for one settlement period so peer modules finish their own
// handover before any byte is emitted.
func (m *Module) switchTo(ctx context.Context, role hal.Role) {
	glog.V(3).Infof("role %v -> %v", m.state, role)
	m.hw.QuiesceBus()
	if m.state == hal.None {
		for _, r := range hal.Roles {
			m.hw.UnloadConfig(r)
		}
	} else {
		m.hw.UnloadConfig(m.state)
	}

	m.hw.LoadConfig(role)
	m.timeout.Clear()
	if t, ok := role.Timer(); ok {
		m.hw.StartTimer(t)
	}

	if role == hal.MyResponse {
		for !m.timeout.IsSet() && ctx.Err() == nil {
			m.hw.Idle()
		}
		m.hw.StopTimer(hal.TimerSettle)
		m.timeout.Clear()
	}

	m.state = role
	m.publish()
}

// publish reattaches the shared bus and refreshes the indicators. A
// configured module joins all five pins so traffic propagates through it;
// an unconfigured one connects only the upstream pin.
func (m *Module) publish() {
	if m.configured {
		m.hw.AttachBus(hal.BusAll)
		m.hw.SetConfiguredLED(true)
		m.hw.ShowServoID(m.servoID)
	} else {
		m.hw.AttachBus(hal.BusRootOnly)
		m.hw.SetConfiguredLED(false)
	}
}
