// Package gyro polls the external rate gyroscope over UART and publishes
// angular rate and temperature for the attitude estimator.
package gyro

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/stratoscope/pointing"
)

const (
	// DatagramIdentifier marks the first byte of a rate datagram.
	DatagramIdentifier = 0x94
	// DatagramSize is the full frame length including the trailing \r\n.
	DatagramSize = 27

	rateScale = 1.0 / 16384.0
	tempScale = 1.0 / 256.0

	statusOffset     = 10
	tempOffset       = 11
	tempStatusOffset = 17
)

var (
	// ErrBadDatagram covers frames with a wrong length or termination.
	ErrBadDatagram = errors.New("incorrect datagram received")
	// ErrBadStatus marks a frame whose rate status byte is non-zero. The
	// rate channels must not be trusted.
	ErrBadStatus = errors.New("bad gyroscope data quality")
)

// Reading is one decoded datagram. Temp is only meaningful when TempOK is
// set; the device reports rate and temperature quality separately.
type Reading struct {
	Rate       pointing.Rate
	Temp       float64
	TempOK     bool
	TempStatus byte
}

// Decode parses a full datagram starting at the identifier byte.
func Decode(data []byte) (Reading, error) {
	if len(data) != DatagramSize {
		return Reading{}, fmt.Errorf("%w: length %d", ErrBadDatagram, len(data))
	}
	if data[0] != DatagramIdentifier {
		return Reading{}, fmt.Errorf("%w: identifier 0x%02x", ErrBadDatagram, data[0])
	}
	if data[DatagramSize-2] != '\r' || data[DatagramSize-1] != '\n' {
		return Reading{}, fmt.Errorf("%w: bad termination", ErrBadDatagram)
	}
	if data[statusOffset] != 0 {
		return Reading{}, fmt.Errorf("%w: status byte 0x%02x", ErrBadStatus, data[statusOffset])
	}

	var r Reading
	channels := [3]*float64{&r.Rate.X, &r.Rate.Y, &r.Rate.Z}
	for i, ch := range channels {
		*ch = float64(signExtend24(data[1+3*i:])) * rateScale
	}

	r.TempStatus = data[tempStatusOffset]
	if r.TempStatus == 0 {
		raw := int16(binary.BigEndian.Uint16(data[tempOffset : tempOffset+2]))
		r.Temp = float64(raw) * tempScale
		r.TempOK = true
	}

	return r, nil
}

// signExtend24 reads a signed 24-bit big-endian value.
func signExtend24(b []byte) int32 {
	v := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	return int32(v<<8) >> 8
}
