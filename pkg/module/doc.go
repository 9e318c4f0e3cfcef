// Package module implements the firmware core of a revolute module: the
// port-role controller, the discovery/routing state machine and the servo
// coupler, driving an abstract hal.Interface.
package module

// A module boots unconfigured with the default ID, couples to its attached
// servo (blocking until one answers), then sits in the wait role listening
// for the master. Frames are interpreted by a decision table: hello
// propagation down the tree, ID assignment, ping, and configuration clear.
// Responses are emitted on both transmit groups so the parent hears them
// regardless of which downstream port this module hangs off.
//
// Everything runs in one goroutine; the only asynchronous inputs are the
// hardware timers, which set a single shared timeout flag.
