package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/revolute.go/pkg/bus"
	"github.com/robotalks/revolute.go/pkg/module"
	"github.com/robotalks/revolute.go/pkg/sim"
)

var (
	moduleCount = 3
	chainPort   = "A"
	window      = 200 * time.Millisecond
)

func init() {
	module.SetupFlags()
	flag.IntVar(&moduleCount, "modules", moduleCount, "Number of modules in the simulated chain.")
	flag.StringVar(&chainPort, "chain-port", chainPort, "Downstream port (A..D) each module plugs into.")
	flag.DurationVar(&window, "window", window, "Reply collection window.")
}

func parseID(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid ID %q: %v", s, err)
	}
	return byte(v), nil
}

func main() {
	flag.Parse()

	chain := sim.NewChain()
	chain.AddLinear(moduleCount, chainPort[0])
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go chain.Run(ctx)
	m := chain.Master()

	shell := ishell.New()
	shell.Println(fmt.Sprintf("revolute chain: %d modules plugged into port %s", moduleCount, chainPort))
	shell.SetPrompt("master > ")

	shell.AddCmd(&ishell.Cmd{
		Name: "hello",
		Help: "broadcast a hello probe and print the replies",
		Func: func(c *ishell.Context) {
			replies := m.Hello(window)
			if len(replies) == 0 {
				c.Println("no replies")
				return
			}
			for _, f := range replies {
				c.Println(f.String())
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "assign",
		Help: "DST NEWID, assign an ID",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("DST and NEWID required"))
				return
			}
			dst, err := parseID(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			id, err := parseID(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			if m.Assign(dst, id, window) {
				c.Println("ok")
			} else {
				c.Println("no acknowledgement")
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "ping",
		Help: "ID, ping a module",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("ID required"))
				return
			}
			id, err := parseID(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			if m.Ping(id, window) {
				c.Println("pong")
			} else {
				c.Println("no reply")
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "clear",
		Help: "ID|all, clear module configuration",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("ID or 'all' required"))
				return
			}
			dst := bus.BroadcastID
			if c.Args[0] != "all" {
				id, err := parseID(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				dst = id
			}
			if m.Clear(dst, window) {
				c.Println("cleared")
			} else {
				c.Println("no acknowledgement")
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "discover",
		Help: "enumerate the chain, assigning IDs in order",
		Func: func(c *ishell.Context) {
			ids := m.Discover(window)
			c.Println(fmt.Sprintf("discovered %d modules: %v", len(ids), ids))
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "state",
		Help: "print every simulated module's state",
		Func: func(c *ishell.Context) {
			for _, node := range chain.Nodes() {
				st := node.Module.Snapshot()
				child := "-"
				if st.Child != 0 {
					child = string(rune(st.Child))
				}
				c.Println(fmt.Sprintf("%s: id=%d configured=%v child=%s servo=%d",
					node.Name, st.ID, st.Configured, child, st.ServoID))
			}
		},
	})

	shell.Run()
}
