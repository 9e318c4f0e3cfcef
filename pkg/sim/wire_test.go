package sim

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type collector struct {
	name string
	lock sync.Mutex
	data []byte
}

func (c *collector) Name() string {
	return c.name
}

func (c *collector) Receive(b byte) {
	c.lock.Lock()
	c.data = append(c.data, b)
	c.lock.Unlock()
}

func (c *collector) bytes() []byte {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]byte(nil), c.data...)
}

func TestInjectDeliversToWire(t *testing.T) {
	b := NewBus()
	w := b.Wire("w")
	tx := &collector{name: "tx"}
	rx := &collector{name: "rx"}
	b.Attach(w, tx)
	b.Attach(w, rx)

	b.Inject(w, tx, 0x42)

	require.Equal(t, []byte{0x42}, rx.bytes())
	// The sender never hears itself.
	require.Empty(t, tx.bytes())
}

func TestBridgeJoinsWires(t *testing.T) {
	b := NewBus()
	w1, w2 := b.Wire("w1"), b.Wire("w2")
	far := &collector{name: "far"}
	b.Attach(w2, far)
	br := b.Join(w1, w2)

	b.Inject(w1, nil, 1)
	require.Empty(t, far.bytes())

	br.SetEnabled(true)
	b.Inject(w1, nil, 2)
	require.Equal(t, []byte{2}, far.bytes())

	br.SetEnabled(false)
	b.Inject(w1, nil, 3)
	require.Equal(t, []byte{2}, far.bytes())
}

func TestBridgesChain(t *testing.T) {
	// w1 -[br1]- w2 -[br2]- w3: propagation crosses every enabled hop.
	b := NewBus()
	w1, w2, w3 := b.Wire("w1"), b.Wire("w2"), b.Wire("w3")
	far := &collector{name: "far"}
	b.Attach(w3, far)
	br1 := b.Join(w1, w2)
	br2 := b.Join(w2, w3)
	br1.SetEnabled(true)
	br2.SetEnabled(true)

	b.Inject(w1, nil, 7)
	require.Equal(t, []byte{7}, far.bytes())

	br1.SetEnabled(false)
	b.Inject(w1, nil, 8)
	require.Equal(t, []byte{7}, far.bytes())
}

func TestDetach(t *testing.T) {
	b := NewBus()
	w := b.Wire("w")
	rx := &collector{name: "rx"}
	b.Attach(w, rx)
	b.Inject(w, nil, 1)
	b.Detach(w, rx)
	b.Inject(w, nil, 2)
	require.Equal(t, []byte{1}, rx.bytes())
}

func TestMonitorSeesEveryByte(t *testing.T) {
	b := NewBus()
	w := b.Wire("w")
	tx := &collector{name: "tx"}
	b.Attach(w, tx)

	var origins []string
	var data []byte
	b.SetMonitor(func(origin string, by byte) {
		origins = append(origins, origin)
		data = append(data, by)
	})

	b.Inject(w, tx, 9)
	b.Inject(w, nil, 10)

	require.Equal(t, []string{"tx", ""}, origins)
	require.Equal(t, []byte{9, 10}, data)
}
