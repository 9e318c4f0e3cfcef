package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"net"

	"github.com/golang/glog"

	"github.com/robotalks/revolute.go/pkg/framework"
	"github.com/robotalks/revolute.go/pkg/module"
	"github.com/robotalks/revolute.go/pkg/servo"
	"github.com/robotalks/revolute.go/pkg/sim"
	"github.com/robotalks/revolute.go/pkg/telemetry"
)

var (
	listenAddr = "127.0.0.1:7788"
	servoID    = 1
	servoLevel = int(servo.StatusReturnRead)
)

func init() {
	module.SetupFlags()
	telemetry.SetupFlags()
	flag.StringVar(&listenAddr, "listen", listenAddr,
		"Address to expose the module's upstream line on.")
	flag.IntVar(&servoID, "servo-id", servoID,
		"Factory ID of the simulated servo.")
	flag.IntVar(&servoLevel, "servo-status-return", servoLevel,
		"Factory status return level of the simulated servo.")
}

func main() {
	flag.Parse()

	chain := sim.NewChain()
	chain.ServoConfig.ID = byte(servoID)
	chain.ServoConfig.StatusReturn = byte(servoLevel)
	node := chain.AddModule(nil, 0)

	runner := framework.NewRunner(context.Background()).HandleSignals()

	if conf := telemetry.NewConfig(); conf.BrokerURL != "" {
		pub, err := conf.NewPublisher()
		if err != nil {
			glog.Exitf("telemetry: %v", err)
		}
		node.Module.SetListener(pub.ListenerFor(node.Name))
		runner.Go(framework.NamedRun("telemetry", pub))
	}

	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		glog.Exitf("listen %s: %v", listenAddr, err)
	}
	glog.Infof("upstream line on %s", lis.Addr())
	runner.Go(framework.NamedRun("bridge", framework.RunFunc(func(ctx context.Context) error {
		return sim.ServeWire(ctx, lis, chain.Bus, chain.MasterWire())
	})))
	runner.Go(framework.NamedRun("chain", framework.RunFunc(chain.Run)))

	if err := runner.Wait(); err != nil {
		glog.Exit(err)
	}
}
