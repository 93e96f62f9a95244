// Package link carries messages between the host and the MCU.
//
// Every frame is laid out as
//
//	tag u8 | len u16 LE | payload (len bytes) | "\r\n"
//
// The trailing stop sequence lets the reader detect a lost byte and
// resynchronise on the next frame boundary.
package link

import (
	"encoding/binary"
	"errors"
	"fmt"

	"sleepywoodpecker/rp-goes-waveform/internal/units"
)

type Tag uint8

// Host to MCU.
const (
	TagDacData Tag = 0x10 + iota
	TagDacState
	TagDacAdd
	TagKeepAlive
)

// MCU to host.
const (
	TagDacRequest Tag = 0x20 + iota
	TagAdcData
	TagDebug
)

func (t Tag) String() string {
	switch t {
	case TagDacData:
		return "DacData"
	case TagDacState:
		return "DacState"
	case TagDacAdd:
		return "DacAdd"
	case TagKeepAlive:
		return "KeepAlive"
	case TagDacRequest:
		return "DacRequest"
	case TagAdcData:
		return "AdcData"
	case TagDebug:
		return "Debug"
	default:
		return fmt.Sprintf("Tag(0x%02x)", uint8(t))
	}
}

const (
	HeaderSize = 3
	MaxPayload = 0xffff
	PointSize  = 4
)

var StopSequence = [2]byte{'\r', '\n'}

var (
	ErrFrameTooLarge = errors.New("link: frame payload too large")
	ErrShortPayload  = errors.New("link: payload too short")
)

// UnknownTagError is returned for a well-delimited frame with a tag this
// side does not handle.
type UnknownTagError struct {
	Tag Tag
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("[link] unknown message tag: %s", e.Tag)
}

// Frame is one received message. Payload aliases the reader's buffer and is
// only valid until the next read.
type Frame struct {
	Tag     Tag
	Payload []byte
}

func DecodeDacRequest(payload []byte) (uint32, error) {
	if len(payload) < 4 {
		return 0, ErrShortPayload
	}
	return binary.LittleEndian.Uint32(payload), nil
}

// DecodeAdcData decodes the channel index and appends the points to dst.
func DecodeAdcData(payload []byte, dst []units.AdcPoint) (int, []units.AdcPoint, error) {
	if len(payload) < 1 || (len(payload)-1)%PointSize != 0 {
		return 0, dst, ErrShortPayload
	}
	index := int(payload[0])
	for p := payload[1:]; len(p) >= PointSize; p = p[PointSize:] {
		dst = append(dst, units.AdcPoint(int32(binary.LittleEndian.Uint32(p))))
	}
	return index, dst, nil
}

// AppendFrame encodes one frame onto dst. The MCU-side test harness and the
// tests use it to produce inbound traffic.
func AppendFrame(dst []byte, tag Tag, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return dst, ErrFrameTooLarge
	}
	dst = append(dst, byte(tag))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(payload)))
	dst = append(dst, payload...)
	return append(dst, StopSequence[:]...), nil
}
