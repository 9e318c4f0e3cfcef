// Package servo implements the vendor protocol of the smart servo
// attached to each module (AX-12+ compatible).
package servo

// Instruction packets have the layout
//
//   0xFF 0xFF | ID | LEN | INSTR | [ADDR] | [VAL] | CHECKSUM
//
// with CHECKSUM = 255 - ((ID+LEN+INSTR+ADDR+VAL) mod 256). PING and RESET
// carry no parameters (LEN=2); READ and WRITE carry an address and a value
// or count (LEN=4).
//
// Status packets come back as 0xFF 0xFF | ID | LEN | ERROR | [PARAM...] |
// CHECKSUM. The reader trusts the servo and does not verify the checksum
// of received status packets.
