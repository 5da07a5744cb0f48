package apdu

import "fmt"

// U-format function octets (first control octet).
const (
	StartDTAct byte = 0x07
	StartDTCon byte = 0x0B
	StopDTAct  byte = 0x13
	StopDTCon  byte = 0x23
	TestFRAct  byte = 0x43
	TestFRCon  byte = 0x83
)

// MaxSequence is the modulus of the 15-bit send and receive sequence numbers.
const MaxSequence = 1 << 15

// NewUFrame builds a U-format frame for the given function octet.
func NewUFrame(function byte) []byte {
	return []byte{StartByte, ControlFieldSize, function | 0x03, 0x00, 0x00, 0x00}
}

// NewSFrame builds an S-format frame acknowledging receive sequence number recv.
func NewSFrame(recv uint16) []byte {
	return []byte{
		StartByte, ControlFieldSize,
		0x01, 0x00,
		byte(recv << 1), byte(recv >> 7),
	}
}

// NewIFrame builds an I-format frame carrying asdu with the given send and
// receive sequence numbers.
func NewIFrame(send, recv uint16, asdu []byte) ([]byte, error) {
	length := ControlFieldSize + len(asdu)
	if length > MaxLength {
		return nil, fmt.Errorf("apdu: ASDU too large: %d bytes (max %d)", len(asdu), MaxLength-ControlFieldSize)
	}

	frame := make([]byte, 0, HeaderSize+length)
	frame = append(frame,
		StartByte, byte(length),
		byte(send<<1), byte(send>>7),
		byte(recv<<1), byte(recv>>7),
	)
	return append(frame, asdu...), nil
}

// SingleCommandASDU builds a C_SC_NA_1 (type 45) activation ASDU for one
// information object, using a 2-octet COT, 2-octet common address and
// 3-octet IOA.
func SingleCommandASDU(commonAddr uint16, ioa uint32, on bool) []byte {
	var sco byte
	if on {
		sco = 0x01
	}
	return []byte{
		45,         // type identification C_SC_NA_1
		0x01,       // variable structure qualifier: one object
		0x06, 0x00, // cause of transmission: activation, originator 0
		byte(commonAddr), byte(commonAddr >> 8),
		byte(ioa), byte(ioa >> 8), byte(ioa >> 16),
		sco,
	}
}
