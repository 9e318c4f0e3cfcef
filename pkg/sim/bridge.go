package sim

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/revolute.go/pkg/framework"
)

// connEndpoint bridges one network connection onto a wire, byte for
// byte. An external master drives the bus through it.
type connEndpoint struct {
	name string
	conn net.Conn

	lock   sync.Mutex
	closed bool
}

func (e *connEndpoint) Name() string {
	return e.name
}

// Receive implements Endpoint, copying bus bytes to the connection.
func (e *connEndpoint) Receive(b byte) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.closed {
		return
	}
	if _, err := e.conn.Write([]byte{b}); err != nil {
		e.closed = true
	}
}

// ServeWire accepts connections and attaches each to the wire until the
// context is canceled. Every connected peer hears the wire and may drive
// it, exactly like another physical node on the line.
func ServeWire(ctx context.Context, lis net.Listener, b *Bus, w *Wire) error {
	var n int
	return framework.RunWithContextCancel(ctx, func() { lis.Close() }, func() error {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return err
			}
			n++
			ep := &connEndpoint{name: fmt.Sprintf("%s@%d", conn.RemoteAddr(), n), conn: conn}
			b.Attach(w, ep)
			glog.Infof("bridge: %s connected", ep.name)
			go func() {
				buf := make([]byte, 256)
				for {
					nr, err := conn.Read(buf)
					for i := 0; i < nr; i++ {
						b.Inject(w, ep, buf[i])
					}
					if err != nil {
						break
					}
				}
				b.Detach(w, ep)
				conn.Close()
				glog.Infof("bridge: %s disconnected", ep.name)
			}()
		}
	})
}
