package framing

// Ward Christensen / CP/M control bytes, shared by every engine in this
// module. Values match the original Xmodem/Ymodem/Zmodem wire convention
// (and lrzsz's zm.c) so captured traffic stays byte-identical across
// implementations.
const (
	ENQ     = 0x05
	CAN     = 'X' & 0x1F
	XOFF    = 's' & 0x1F
	XON     = 'q' & 0x1F
	SOH     = 0x01
	STX     = 0x02
	EOT     = 0x04
	ACK     = 0x06
	NAK     = 0x15
	CPMEOF  = 0x1A
	WantCRC = 0x43 // 'C': request CRC-16 blocks instead of checksum
	WantG   = 0x47 // 'G': request streaming (no-ACK) blocks
)

// CancelSequence is the 5-CAN abort signal both sides recognize at any
// point in a transfer, per spec.md's cancel invariant.
var CancelSequence = [5]byte{CAN, CAN, CAN, CAN, CAN}
