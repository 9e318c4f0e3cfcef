// Package sim provides a host-side simulation of the shared module bus:
// wires carrying bytes, module-controlled bridging, simulated servos and
// a master endpoint for driving a chain.
package sim

// The physical bus is a set of half-duplex lines. A configured module
// connects all five of its pins, electrically joining its upstream line
// with its four downstream lines; an unconfigured module connects only
// the upstream pin. A byte written anywhere therefore reaches every
// endpoint of the connected component, which is how a child's reply
// propagates to the master without any module relaying it.
//
// The simulation models this directly: a Bus is a graph of wires joined
// by bridges that modules enable and disable as they attach and detach.
// Delivery is synchronous per byte; collision avoidance is the same as on
// the real bus: the settlement delay before any module transmits.
