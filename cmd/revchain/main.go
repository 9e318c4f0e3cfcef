package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/revolute.go/pkg/bus"
	"github.com/robotalks/revolute.go/pkg/framework"
	"github.com/robotalks/revolute.go/pkg/module"
	"github.com/robotalks/revolute.go/pkg/sim"
	"github.com/robotalks/revolute.go/pkg/telemetry"
)

var (
	moduleCount = 3
	chainPort   = "A"
	httpAddr    = ""
	discover    = true
	window      = 200 * time.Millisecond
)

func init() {
	module.SetupFlags()
	telemetry.SetupFlags()
	flag.IntVar(&moduleCount, "modules", moduleCount, "Number of modules in the chain.")
	flag.StringVar(&chainPort, "chain-port", chainPort, "Downstream port (A..D) each module plugs into.")
	flag.StringVar(&httpAddr, "http", httpAddr, "Address to serve the frame tap on, empty to disable.")
	flag.BoolVar(&discover, "discover", discover, "Run master discovery and keep pinging the chain.")
	flag.DurationVar(&window, "window", window, "Master reply collection window.")
}

// frameDoc is the JSON document streamed to frame tap clients.
type frameDoc struct {
	Origin string `json:"origin"`
	Src    int    `json:"src"`
	Dst    int    `json:"dst"`
	Type   string `json:"type"`
	Param  int    `json:"param"`
}

// wsHub fans frame documents out to connected websocket clients.
type wsHub struct {
	lock  sync.Mutex
	conns map[*websocket.Conn]bool
}

func newWsHub() *wsHub {
	return &wsHub{conns: make(map[*websocket.Conn]bool)}
}

func (h *wsHub) broadcast(v interface{}) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for conn := range h.conns {
		if err := websocket.JSON.Send(conn, v); err != nil {
			delete(h.conns, conn)
			conn.Close()
		}
	}
}

func (h *wsHub) handle(ws *websocket.Conn) {
	h.lock.Lock()
	h.conns[ws] = true
	h.lock.Unlock()
	var discard string
	for websocket.Message.Receive(ws, &discard) == nil {
	}
	h.lock.Lock()
	delete(h.conns, ws)
	h.lock.Unlock()
}

func main() {
	flag.Parse()

	chain := sim.NewChain()
	chain.AddLinear(moduleCount, chainPort[0])

	runner := framework.NewRunner(context.Background()).HandleSignals()

	if conf := telemetry.NewConfig(); conf.BrokerURL != "" {
		pub, err := conf.NewPublisher()
		if err != nil {
			glog.Exitf("telemetry: %v", err)
		}
		for _, node := range chain.Nodes() {
			node.Module.SetListener(pub.ListenerFor(node.Name))
		}
		runner.Go(framework.NamedRun("telemetry", pub))
	}

	if httpAddr != "" {
		hub := newWsHub()
		monitor := sim.NewFrameMonitor(func(origin string, f bus.Frame) {
			hub.broadcast(frameDoc{
				Origin: origin,
				Src:    int(f.Src),
				Dst:    int(f.Dst),
				Type:   f.Type.String(),
				Param:  int(f.Param),
			})
		})
		chain.Bus.SetMonitor(monitor.Feed)
		mux := http.NewServeMux()
		mux.Handle("/frames", websocket.Handler(hub.handle))
		server := &http.Server{Addr: httpAddr, Handler: mux}
		glog.Infof("frame tap on ws://%s/frames", httpAddr)
		runner.Go(framework.NamedRun("http", framework.RunFunc(func(ctx context.Context) error {
			return framework.RunWithContextCancel(ctx, func() { server.Close() }, server.ListenAndServe)
		})))
	}

	if discover {
		runner.Go(framework.NamedRun("master", framework.RunFunc(func(ctx context.Context) error {
			// Let the modules finish coupling their servos first.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
			ids := chain.Master().Discover(window)
			glog.Infof("master: discovered %d modules: %v", len(ids), ids)
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					for _, id := range ids {
						if !chain.Master().Ping(id, window) {
							glog.Warningf("master: module %d unresponsive", id)
						}
					}
				}
			}
		})))
	}

	runner.Go(framework.NamedRun("chain", framework.RunFunc(chain.Run)))

	if err := runner.Wait(); err != nil {
		glog.Exit(err)
	}
}
