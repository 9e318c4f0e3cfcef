// Package bus implements the module-to-module wire protocol.
package bus

// The module bus is a half-duplex serial line shared by every node of a
// chain. Frames have a fixed layout with doubled delimiters:
//
//   0xF8 0xF8 | SRC | DST | TYPE | PARAM | 0x55 0x55
//
// The start byte appears twice so a receiver that joins the line late, or
// loses a single bit at the edge of a transmission, still has a window to
// lock on. There is no length field and no checksum; a malformed frame is
// dropped and the receiver keeps hunting for the next start sequence.
//
// Producer and consumer are both module firmware; the master node speaks
// the same format.
