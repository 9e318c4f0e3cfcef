// Package telemetry publishes module state changes to an MQTT broker as
// retained JSON state documents plus an event stream.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/revolute.go/pkg/module"
	"github.com/robotalks/revolute.go/pkg/servo"
)

// stateDoc is the published state document.
type stateDoc struct {
	ID         int    `json:"id"`
	Configured bool   `json:"configured"`
	Child      string `json:"child,omitempty"`
	ServoID    int    `json:"servoId,omitempty"`
	Event      string `json:"event"`
}

type taggedEvent struct {
	node  string
	event module.Event
}

// Publisher publishes module events over one MQTT connection. Topics are
// <prefix><instance>/<node>/state (retained) and .../events.
type Publisher struct {
	client   paho.Client
	prefix   string
	instance string
	eventCh  chan taggedEvent
}

// clientOptionsFromURL builds MQTT client options from an URL of the
// form mqtt://host:port/topic-prefix.
func clientOptionsFromURL(serverURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, "", err
	}
	scheme := u.Scheme
	if scheme == "" || scheme == "mqtt" {
		scheme = "tcp"
	}
	opts := paho.NewClientOptions()
	opts.AddBroker(scheme + "://" + u.Host).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}
	return opts, strings.TrimPrefix(u.Path, "/"), nil
}

// NewPublisher creates a Publisher for the given broker URL.
func NewPublisher(brokerURL, instance string) (*Publisher, error) {
	opts, prefix, err := clientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("bad broker URL: %v", err)
	}
	if opts.ClientID == "" {
		opts.SetClientID("revolute:" + instance)
	}
	p := &Publisher{
		prefix:   prefix,
		instance: instance,
		eventCh:  make(chan taggedEvent, 16),
	}
	p.client = paho.NewClient(opts)
	return p, nil
}

// ListenerFor returns a module.Listener tagging events with a node name.
// The listener never blocks; events are dropped when the broker can't
// keep up, state being retained anyway.
func (p *Publisher) ListenerFor(node string) module.Listener {
	return module.ListenerFunc(func(e module.Event) {
		select {
		case p.eventCh <- taggedEvent{node: node, event: e}:
		default:
			glog.V(1).Infof("telemetry: dropped %v for %s", e.Kind, node)
		}
	})
}

// Run implements framework.Runnable, connecting and draining events
// until the context is canceled.
func (p *Publisher) Run(ctx context.Context) error {
	token := p.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %v", err)
	}
	defer p.client.Disconnect(0)
	glog.V(1).Infof("telemetry: connected, prefix %q", p.prefix)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case te := <-p.eventCh:
			p.publish(te)
		}
	}
}

func (p *Publisher) publish(te taggedEvent) {
	payload, err := json.Marshal(docFor(te.event))
	if err != nil {
		panic(err)
	}
	topic := p.prefix + p.instance + "/" + te.node
	p.client.Publish(topic+"/state", 1, true, payload)
	p.client.Publish(topic+"/events", 0, false, payload)
}

func docFor(e module.Event) stateDoc {
	doc := stateDoc{
		ID:         int(e.State.ID),
		Configured: e.State.Configured,
		Event:      e.Kind.String(),
	}
	if c := e.State.Child; c != 0 {
		doc.Child = string(rune(c))
	}
	if e.State.ServoID != servo.NoID {
		doc.ServoID = int(e.State.ServoID)
	}
	return doc
}
