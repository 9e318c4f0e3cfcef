package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/revolute.go/pkg/bus"
	"github.com/robotalks/revolute.go/pkg/hal"
	"github.com/robotalks/revolute.go/pkg/servo"
)

const (
	replyWindow = 150 * time.Millisecond
	quietWindow = 100 * time.Millisecond
)

// startChain builds a chain with build, runs it and waits for every
// module to finish servo coupling.
func startChain(t *testing.T, build func(c *Chain)) (*Chain, func()) {
	t.Helper()
	c := NewChain()
	build(c)
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for _, node := range c.Nodes() {
		for {
			if node.Module.Snapshot().ServoID != servo.NoID && node.HAL.Role() == hal.Wait {
				break
			}
			if !time.Now().Before(deadline) {
				cancel()
				t.Fatalf("%s never finished servo coupling", node.Name)
			}
			time.Sleep(2 * time.Millisecond)
		}
	}
	return c, cancel
}

func TestFreshSlaveAnswersHello(t *testing.T) {
	c, stop := startChain(t, func(c *Chain) {
		c.AddModule(nil, 0)
	})
	defer stop()

	replies := c.Master().Hello(replyWindow)
	require.Equal(t, []bus.Frame{{Src: bus.DefaultID, Dst: bus.MasterID, Type: bus.Hello}}, replies)
}

func TestAssignmentAndPing(t *testing.T) {
	c, stop := startChain(t, func(c *Chain) {
		c.AddModule(nil, 0)
	})
	defer stop()
	node := c.Nodes()[0]

	require.True(t, c.Master().Assign(bus.DefaultID, 5, replyWindow))

	// The servo follows the module's new identity.
	deadline := time.Now().Add(2 * time.Second)
	for node.Module.Snapshot().ServoID != 5 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	st := node.Module.Snapshot()
	require.Equal(t, byte(5), st.ID)
	require.True(t, st.Configured)
	require.Equal(t, byte(5), st.ServoID)
	require.Equal(t, byte(5), node.Servo.ID())
	require.True(t, node.HAL.LED())
	require.Equal(t, byte(5), node.HAL.Display())

	require.True(t, c.Master().Ping(5, replyWindow))

	// A ping for a downstream ID this module doesn't have stays silent.
	c.Master().Drain()
	c.Master().Send(bus.Frame{Src: bus.MasterID, Dst: 9, Type: bus.Ping})
	_, ok := c.Master().Expect(quietWindow)
	require.False(t, ok)
}

func TestBroadcastClear(t *testing.T) {
	c, stop := startChain(t, func(c *Chain) {
		c.AddModule(nil, 0)
	})
	defer stop()
	node := c.Nodes()[0]

	require.True(t, c.Master().Assign(bus.DefaultID, 5, replyWindow))

	// Let the module finish renaming its servo and return to the wait
	// role; frames sent meanwhile would fall on deaf pins.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if node.Module.Snapshot().ServoID == 5 && node.HAL.Role() == hal.Wait {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	require.True(t, c.Master().Clear(bus.BroadcastID, replyWindow))

	// Broadcast clears are obeyed silently.
	_, ok := c.Master().Expect(quietWindow)
	require.False(t, ok)

	deadline = time.Now().Add(time.Second)
	for node.Module.Snapshot().Configured && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	st := node.Module.Snapshot()
	require.Equal(t, bus.DefaultID, st.ID)
	require.False(t, st.Configured)
	require.Equal(t, byte(0), st.Child)
	require.False(t, node.HAL.LED())
	// The servo keeps the identity written to its EEPROM.
	require.Equal(t, byte(5), node.Servo.ID())
}

func TestChainDiscovery(t *testing.T) {
	c, stop := startChain(t, func(c *Chain) {
		c.AddLinear(2, 'A')
	})
	defer stop()

	ids := c.Master().Discover(replyWindow)
	require.Equal(t, []byte{1, 2}, ids)

	first := c.Nodes()[0].Module.Snapshot()
	second := c.Nodes()[1].Module.Snapshot()
	require.Equal(t, byte(1), first.ID)
	require.Equal(t, byte('A'), first.Child)
	require.Equal(t, byte(2), second.ID)
	require.Equal(t, byte(0), second.Child)

	// The deep module answers pings through the chain.
	require.True(t, c.Master().Ping(2, replyWindow))
	require.True(t, c.Master().Ping(1, replyWindow))

	// Both servos were renamed to their module's identity.
	require.Equal(t, byte(1), c.Nodes()[0].Servo.ID())
	require.Equal(t, byte(2), c.Nodes()[1].Servo.ID())
}

func TestDeepChainDiscovery(t *testing.T) {
	c, stop := startChain(t, func(c *Chain) {
		c.AddLinear(3, 'A')
	})
	defer stop()

	require.Equal(t, []byte{1, 2, 3}, c.Master().Discover(replyWindow))
	require.True(t, c.Master().Ping(3, replyWindow))
	for i, node := range c.Nodes() {
		require.Equal(t, byte(i+1), node.Servo.ID())
	}
}

func TestDirectedClearCascades(t *testing.T) {
	c, stop := startChain(t, func(c *Chain) {
		c.AddLinear(2, 'B')
	})
	defer stop()

	require.Equal(t, []byte{1, 2}, c.Master().Discover(replyWindow))

	// Clearing the upstream module takes its whole subtree down: the
	// downstream module hears the same frame and its ID ordering no
	// longer holds.
	require.True(t, c.Master().Clear(1, replyWindow))
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if !c.Nodes()[0].Module.Snapshot().Configured && !c.Nodes()[1].Module.Snapshot().Configured {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.False(t, c.Nodes()[0].Module.Snapshot().Configured)
	require.False(t, c.Nodes()[1].Module.Snapshot().Configured)
}

func TestStatusReturnForced(t *testing.T) {
	c, stop := startChain(t, func(c *Chain) {
		// A servo that never answers reads couples only with the forced
		// status return write enabled.
		c.ServoConfig.StatusReturn = servo.StatusReturnNever
		c.ModuleConfig.ForceStatusReturn = true
		c.AddModule(nil, 0)
	})
	defer stop()

	require.Equal(t, servo.StatusReturnRead, c.Nodes()[0].Servo.StatusReturn())
}

func TestServoReassignmentWrite(t *testing.T) {
	// Scenario: module assigned ID 3 with a factory servo 1. The write
	// on the servo line must address the old ID and carry the new one.
	tap := &collector{name: "tap"}
	c := NewChain()
	c.AddModule(nil, 0)
	want := servo.Write(1, servo.RegID, 3).Bytes()
	c.Bus.SetMonitor(func(origin string, b byte) {
		if origin == "module-1:5" {
			tap.Receive(b)
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	node := c.Nodes()[0]
	deadline := time.Now().Add(5 * time.Second)
	for node.HAL.Role() != hal.Wait && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	require.True(t, c.Master().Assign(bus.DefaultID, 3, replyWindow))
	deadline = time.Now().Add(2 * time.Second)
	for node.Module.Snapshot().ServoID != 3 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	require.Equal(t, byte(3), node.Servo.ID())
	require.Contains(t, string(tap.bytes()), string(want))
}
