// Package hal defines the hardware capabilities the module firmware
// consumes: dynamically loadable UART roles, byte channels, one-shot
// timers and the GPIO surface.
package hal

// The target microcontroller has a single UART peripheral that must be
// re-pointed at different physical pins for each role the module assumes.
// The firmware core never touches hardware directly; it drives an
// Interface implementation, which makes the core portable and testable
// against the in-memory implementation in hal/simhal.
