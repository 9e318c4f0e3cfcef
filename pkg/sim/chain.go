package sim

import (
	"context"
	"fmt"

	"github.com/robotalks/revolute.go/pkg/bus"
	"github.com/robotalks/revolute.go/pkg/framework"
	"github.com/robotalks/revolute.go/pkg/hal"
	"github.com/robotalks/revolute.go/pkg/hal/simhal"
	"github.com/robotalks/revolute.go/pkg/module"
)

// Node is one simulated module with its hardware and servo.
type Node struct {
	Name   string
	Module *module.Module
	HAL    *simhal.HAL
	Servo  *Servo

	upstream *Wire
	children [4]*Wire
	bridge   *Bridge
}

// halPort adapts one of a node's physical ports to a wire endpoint.
type halPort struct {
	hal  *simhal.HAL
	name string
	port int
}

func (p *halPort) Name() string {
	return p.name
}

func (p *halPort) Receive(b byte) {
	p.hal.Deliver(p.port, b)
}

// Chain builds and runs a tree of simulated modules on one bus. The
// configs are applied to modules added after they are set.
type Chain struct {
	Bus          *Bus
	ModuleConfig module.Config
	HALConfig    simhal.Config
	ServoConfig  ServoConfig

	masterWire *Wire
	master     *MasterPort
	nodes      []*Node
}

// NewChain creates an empty chain with a master port on the root wire.
func NewChain() *Chain {
	b := NewBus()
	mw := b.Wire("root")
	return &Chain{
		Bus:          b,
		ModuleConfig: module.NewConfig(),
		HALConfig:    simhal.NewConfig(),
		ServoConfig:  NewServoConfig(),
		masterWire:   mw,
		master:       NewMasterPort(b, mw),
	}
}

// Master returns the master's end of the bus.
func (c *Chain) Master() *MasterPort {
	return c.master
}

// MasterWire returns the root wire, for bridging to external masters.
func (c *Chain) MasterWire() *Wire {
	return c.masterWire
}

// Nodes returns the modules in creation order.
func (c *Chain) Nodes() []*Node {
	return c.nodes
}

// AddModule plugs a new module into the chain: into the master's wire
// when parent is nil, otherwise into the parent's downstream port
// ('A'..'D'). The module's servo sits on its own internal line (the
// secondary bus), which the group-select never touches.
func (c *Chain) AddModule(parent *Node, port byte) *Node {
	up := c.masterWire
	if parent != nil {
		ch, ok := hal.ChildChannel(port)
		if !ok {
			panic(fmt.Sprintf("bad downstream port %q", port))
		}
		up = parent.children[ch-hal.ChanChild1]
	}

	name := fmt.Sprintf("module-%d", len(c.nodes)+1)
	node := &Node{
		Name:     name,
		HAL:      simhal.New(c.HALConfig),
		upstream: up,
	}
	var wires [simhal.NumPorts]*Wire
	wires[0] = up
	for i := 0; i < 4; i++ {
		node.children[i] = c.Bus.Wire(fmt.Sprintf("%s.%c", name, bus.PortA+byte(i)))
		wires[i+1] = node.children[i]
	}
	servoWire := c.Bus.Wire(name + ".servo")
	wires[simhal.PortServo] = servoWire

	eps := make([]*halPort, simhal.NumPorts)
	for i, w := range wires {
		eps[i] = &halPort{hal: node.HAL, name: fmt.Sprintf("%s:%d", name, i), port: i}
		c.Bus.Attach(w, eps[i])
	}
	node.HAL.Transmit = func(port int, b byte) {
		// With the bridge enabled the five bus pins are one line: drive
		// it once, from the upstream pin, so each listener hears the byte
		// once.
		if port > 0 && port < simhal.NumBusPorts && node.HAL.Attach() == hal.BusAll {
			return
		}
		c.Bus.Inject(wires[port], eps[port], b)
	}
	// Only the five bus pins join the group-select bridge.
	node.bridge = c.Bus.Join(wires[:simhal.NumBusPorts]...)
	node.HAL.OnAttach = func(mode hal.BusAttach) {
		node.bridge.SetEnabled(mode == hal.BusAll)
	}

	node.Servo = NewServo(c.Bus, servoWire, name+".servo", c.ServoConfig)
	node.Module = module.New(node.HAL, c.ModuleConfig)

	c.nodes = append(c.nodes, node)
	return node
}

// AddLinear appends n modules in a line, each plugged into the previous
// one's given port.
func (c *Chain) AddLinear(n int, port byte) {
	var parent *Node
	if len(c.nodes) > 0 {
		parent = c.nodes[len(c.nodes)-1]
	}
	for i := 0; i < n; i++ {
		parent = c.AddModule(parent, port)
	}
}

// Run runs every module until the context is canceled.
func (c *Chain) Run(ctx context.Context) error {
	runner := framework.NewRunner(ctx)
	for _, node := range c.nodes {
		runner.Go(framework.NamedRun(node.Name, node.Module))
	}
	return runner.Wait()
}
