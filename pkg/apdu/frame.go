package apdu

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoControlField is returned by Classify for a frame whose length octet
// is zero, so there is no control octet to inspect.
var ErrNoControlField = errors.New("apdu: frame has no control field")

// ErrNotAFrame is returned by Classify when raw does not start with the
// start octet or its length disagrees with the length octet.
var ErrNotAFrame = errors.New("apdu: not a complete frame")

// Kind is the frame format selected by the low bits of the first control
// octet. Only these three formats exist.
type Kind uint8

const (
	// KindInformation is a numbered I-format frame carrying an ASDU.
	KindInformation Kind = iota
	// KindSupervisory is an S-format acknowledgment frame.
	KindSupervisory
	// KindUnnumbered is a U-format link control frame (STARTDT, STOPDT, TESTFR).
	KindUnnumbered
)

// ControlFieldSize is the number of control octets in every 104 APCI.
const ControlFieldSize = 4

func (k Kind) String() string {
	switch k {
	case KindInformation:
		return "I"
	case KindSupervisory:
		return "S"
	case KindUnnumbered:
		return "U"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// KindOf returns the frame format encoded in the first control octet.
func KindOf(cf1 byte) Kind {
	switch {
	case cf1&0x01 == 0x00:
		return KindInformation
	case cf1&0x03 == 0x01:
		return KindSupervisory
	default:
		return KindUnnumbered
	}
}

// Frame is one complete APDU. Raw is owned by the Frame.
type Frame struct {
	Raw        []byte
	Kind       Kind
	CapturedAt time.Time
}

// Classify tags a complete frame with its Kind and capture time.
// raw is retained, not copied.
//
// A frame with L = 0 ("68 00") is well formed and the Reassembler consumes
// it like any other, but it carries no control octet, so Classify returns
// ErrNoControlField and callers skip it instead of dispatching it.
func Classify(raw []byte, at time.Time) (Frame, error) {
	if len(raw) < HeaderSize || raw[0] != StartByte || len(raw) != int(raw[1])+HeaderSize {
		return Frame{}, ErrNotAFrame
	}
	if raw[1] == 0 {
		return Frame{}, ErrNoControlField
	}
	return Frame{
		Raw:        raw,
		Kind:       KindOf(raw[HeaderSize]),
		CapturedAt: at,
	}, nil
}

// Len returns the on-wire size of the frame.
func (f Frame) Len() int {
	return len(f.Raw)
}

// Length returns the value of the length octet.
func (f Frame) Length() int {
	if len(f.Raw) < HeaderSize {
		return 0
	}
	return int(f.Raw[1])
}

// Control returns the control octets (up to four).
func (f Frame) Control() []byte {
	end := min(HeaderSize+ControlFieldSize, len(f.Raw))
	if end <= HeaderSize {
		return nil
	}
	return f.Raw[HeaderSize:end]
}

// ASDU returns the application payload of an I-format frame. It is nil for
// S and U frames and for I frames without payload.
func (f Frame) ASDU() []byte {
	if f.Kind != KindInformation || len(f.Raw) <= HeaderSize+ControlFieldSize {
		return nil
	}
	return f.Raw[HeaderSize+ControlFieldSize:]
}

// CapturedAtMillis returns the capture time in milliseconds since the epoch.
func (f Frame) CapturedAtMillis() int64 {
	return f.CapturedAt.UnixMilli()
}

func (f Frame) String() string {
	return fmt.Sprintf("%s-frame len=%d % x", f.Kind, f.Len(), f.Raw)
}
