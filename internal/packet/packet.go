// Package packet implements the Sphero v2 API wire format: framed,
// escaped, checksummed packets carrying a device ID, command ID and
// sequence byte, plus a stream assembler that rebuilds frames from
// fragmented BLE notifications.
package packet

import (
	"errors"
	"fmt"
)

// Frame delimiters and escape encoding. The escape byte and both
// delimiters never appear raw inside a frame body; occurrences in the
// payload are replaced by the escape byte followed by the escaped form.
const (
	StartOfPacket byte = 0x8D
	EndOfPacket   byte = 0xD8

	escapeByte    byte = 0xAB
	escapedStart  byte = 0x05
	escapedEnd    byte = 0x50
	escapedEscape byte = 0x23
)

// Packet flags.
const (
	FlagIsResponse                byte = 0x01
	FlagRequestsResponse          byte = 0x02
	FlagRequestsOnlyErrorResponse byte = 0x04
	FlagResetsInactivityTimeout   byte = 0x08
	FlagHasTargetID               byte = 0x10
	FlagHasSourceID               byte = 0x20
)

// NotifySequence is the sequence byte carried by unsolicited
// notifications (sensor streams, collision, battery events). Request
// sequence numbers cycle 0x00-0xFE and never collide with it.
const NotifySequence byte = 0xFF

// ErrorCode is the response error byte.
type ErrorCode byte

const (
	ErrorSuccess ErrorCode = iota
	ErrorBadDeviceID
	ErrorBadCommandID
	ErrorNotYetImplemented
	ErrorRestricted
	ErrorBadDataLength
	ErrorCommandFailed
	ErrorBadParameterValue
	ErrorBusy
	ErrorBadTargetID
	ErrorTargetUnavailable
)

var errorCodeNames = map[ErrorCode]string{
	ErrorSuccess:           "success",
	ErrorBadDeviceID:       "bad device id",
	ErrorBadCommandID:      "bad command id",
	ErrorNotYetImplemented: "not yet implemented",
	ErrorRestricted:        "restricted",
	ErrorBadDataLength:     "bad data length",
	ErrorCommandFailed:     "command failed",
	ErrorBadParameterValue: "bad parameter value",
	ErrorBusy:              "busy",
	ErrorBadTargetID:       "bad target id",
	ErrorTargetUnavailable: "target unavailable",
}

func (e ErrorCode) String() string {
	if name, ok := errorCodeNames[e]; ok {
		return name
	}
	return fmt.Sprintf("unknown (0x%02X)", byte(e))
}

// Decode errors.
var (
	ErrFrameTooShort = errors.New("frame too short")
	ErrBadDelimiter  = errors.New("frame missing start or end delimiter")
	ErrBadEscape     = errors.New("invalid escape sequence")
	ErrBadChecksum   = errors.New("checksum mismatch")
	ErrFrameTooLong  = errors.New("frame exceeds maximum size")
)

// Packet is one decoded v2 API packet.
type Packet struct {
	Flags     byte
	TargetID  byte
	SourceID  byte
	DeviceID  byte
	CommandID byte
	Sequence  byte
	Error     ErrorCode
	Data      []byte
}

// New builds a command packet that requests a response and resets the
// firmware inactivity timeout, the flags every outbound command carries.
func New(deviceID, commandID byte, data ...byte) *Packet {
	return &Packet{
		Flags:     FlagRequestsResponse | FlagResetsInactivityTimeout,
		DeviceID:  deviceID,
		CommandID: commandID,
		Data:      data,
	}
}

// IsResponse reports whether the packet is a response to a command.
func (p *Packet) IsResponse() bool {
	return p.Flags&FlagIsResponse != 0
}

// RequestsResponse reports whether the receiver expects an acknowledgement.
func (p *Packet) RequestsResponse() bool {
	return p.Flags&FlagRequestsResponse != 0
}

func (p *Packet) String() string {
	if p.IsResponse() {
		return fmt.Sprintf("response did=0x%02X cid=0x%02X seq=0x%02X err=%s len=%d",
			p.DeviceID, p.CommandID, p.Sequence, p.Error, len(p.Data))
	}
	return fmt.Sprintf("packet did=0x%02X cid=0x%02X seq=0x%02X flags=0x%02X len=%d",
		p.DeviceID, p.CommandID, p.Sequence, p.Flags, len(p.Data))
}

// Encode frames the packet: header and data are checksummed, escaped and
// wrapped in the start/end delimiters.
func (p *Packet) Encode() []byte {
	body := make([]byte, 0, 8+len(p.Data))
	body = append(body, p.Flags)
	if p.Flags&FlagHasTargetID != 0 {
		body = append(body, p.TargetID)
	}
	if p.Flags&FlagHasSourceID != 0 {
		body = append(body, p.SourceID)
	}
	body = append(body, p.DeviceID, p.CommandID, p.Sequence)
	if p.IsResponse() {
		body = append(body, byte(p.Error))
	}
	body = append(body, p.Data...)
	body = append(body, checksum(body))

	out := make([]byte, 0, len(body)+4)
	out = append(out, StartOfPacket)
	for _, b := range body {
		switch b {
		case StartOfPacket:
			out = append(out, escapeByte, escapedStart)
		case EndOfPacket:
			out = append(out, escapeByte, escapedEnd)
		case escapeByte:
			out = append(out, escapeByte, escapedEscape)
		default:
			out = append(out, b)
		}
	}
	return append(out, EndOfPacket)
}

// Decode parses a full frame including both delimiters.
func Decode(frame []byte) (*Packet, error) {
	// Smallest frame: SOP flags did cid seq chk EOP.
	if len(frame) < 7 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(frame))
	}
	if frame[0] != StartOfPacket || frame[len(frame)-1] != EndOfPacket {
		return nil, ErrBadDelimiter
	}

	body, err := unescape(frame[1 : len(frame)-1])
	if err != nil {
		return nil, err
	}
	if len(body) < 5 {
		return nil, fmt.Errorf("%w: %d bytes unescaped", ErrFrameTooShort, len(body))
	}

	chk := body[len(body)-1]
	body = body[:len(body)-1]
	if checksum(body) != chk {
		return nil, fmt.Errorf("%w: want 0x%02X have 0x%02X", ErrBadChecksum, checksum(body), chk)
	}

	p := &Packet{Flags: body[0]}
	i := 1
	if p.Flags&FlagHasTargetID != 0 {
		if i >= len(body) {
			return nil, ErrFrameTooShort
		}
		p.TargetID = body[i]
		i++
	}
	if p.Flags&FlagHasSourceID != 0 {
		if i >= len(body) {
			return nil, ErrFrameTooShort
		}
		p.SourceID = body[i]
		i++
	}
	if i+3 > len(body) {
		return nil, ErrFrameTooShort
	}
	p.DeviceID = body[i]
	p.CommandID = body[i+1]
	p.Sequence = body[i+2]
	i += 3
	if p.IsResponse() {
		if i >= len(body) {
			return nil, ErrFrameTooShort
		}
		p.Error = ErrorCode(body[i])
		i++
	}
	if i < len(body) {
		p.Data = append([]byte(nil), body[i:]...)
	}
	return p, nil
}

// checksum is the bitwise complement of the 8-bit sum of the body bytes.
func checksum(body []byte) byte {
	var sum byte
	for _, b := range body {
		sum += b
	}
	return ^sum
}

func unescape(in []byte) ([]byte, error) {
	out := make([]byte, 0, len(in))
	for i := 0; i < len(in); i++ {
		b := in[i]
		if b != escapeByte {
			out = append(out, b)
			continue
		}
		i++
		if i >= len(in) {
			return nil, fmt.Errorf("%w: dangling escape byte", ErrBadEscape)
		}
		switch in[i] {
		case escapedStart:
			out = append(out, StartOfPacket)
		case escapedEnd:
			out = append(out, EndOfPacket)
		case escapedEscape:
			out = append(out, escapeByte)
		default:
			return nil, fmt.Errorf("%w: 0x%02X 0x%02X", ErrBadEscape, escapeByte, in[i])
		}
	}
	return out, nil
}
