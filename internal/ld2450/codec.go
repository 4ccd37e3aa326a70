package ld2450

import (
	"encoding/binary"
	"fmt"
)

// signBit is the high bit of the second (most significant) byte. The radar
// sets it for positive values and clears it for negative ones, the opposite
// of two's complement.
const signBit = 0x80

// DecodeWeirdSign decodes the radar's signed 16-bit format into an int16.
func DecodeWeirdSign(b [2]byte) int16 {
	if b[1]&signBit != 0 {
		b[1] &^= signBit
		return int16(binary.LittleEndian.Uint16(b[:]))
	}
	return -int16(binary.LittleEndian.Uint16(b[:]))
}

// EncodeWeirdSign is the inverse of DecodeWeirdSign. The format has no
// representation for -32768, which saturates to -32767.
func EncodeWeirdSign(v int16) [2]byte {
	var b [2]byte
	if v >= 0 {
		binary.LittleEndian.PutUint16(b[:], uint16(v)|signBit<<8)
		return b
	}
	if v == -32768 {
		v = -32767
	}
	binary.LittleEndian.PutUint16(b[:], uint16(-v))
	return b
}

func decodeU16(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b)
}

func putU16(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b, v)
}

// BaudRate is one of the serial speeds the radar can be switched to.
type BaudRate int

const (
	Baud9600 BaudRate = iota
	Baud19200
	Baud38400
	Baud57600
	Baud115200
	Baud230400
	Baud256000
	Baud460800
)

// DefaultBaudRate is the factory setting of the radar.
const DefaultBaudRate = Baud256000

var baudRates = [...]struct {
	bits int
	code uint16
}{
	Baud9600:   {9600, 0x01},
	Baud19200:  {19200, 0x02},
	Baud38400:  {38400, 0x03},
	Baud57600:  {57600, 0x04},
	Baud115200: {115200, 0x05},
	Baud230400: {230400, 0x06},
	Baud256000: {256000, 0x07},
	Baud460800: {460800, 0x08},
}

func (b BaudRate) valid() bool {
	return b >= Baud9600 && b <= Baud460800
}

// Code returns the selection index sent with the set-baud-rate command.
func (b BaudRate) Code() uint16 {
	if !b.valid() {
		return baudRates[DefaultBaudRate].code
	}
	return baudRates[b].code
}

// Bits returns the speed in bits per second.
func (b BaudRate) Bits() int {
	if !b.valid() {
		return baudRates[DefaultBaudRate].bits
	}
	return baudRates[b].bits
}

func (b BaudRate) String() string {
	return fmt.Sprintf("%d", b.Bits())
}

// ParseBaudRate maps a speed in bits per second to a BaudRate.
func ParseBaudRate(bits int) (BaudRate, error) {
	for i, r := range baudRates {
		if r.bits == bits {
			return BaudRate(i), nil
		}
	}
	return DefaultBaudRate, fmt.Errorf("unsupported baud rate %d", bits)
}
