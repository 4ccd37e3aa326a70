package ld2450

import (
	"cmp"
	"encoding/binary"
	"fmt"
)

// FirmwareVersionSize is the length of the firmware version block.
const FirmwareVersionSize = 8

// FirmwareVersion is the version block reported by the radar.
type FirmwareVersion struct {
	// Type is zero based; 0 is shown as "V1". The datasheet does not say
	// when it would be anything else.
	Type  uint16 `json:"type"`
	Major uint16 `json:"major"`
	Minor uint32 `json:"minor"`
}

// DecodeFirmwareVersion decodes the 8-byte little-endian version block.
func DecodeFirmwareVersion(b []byte) (FirmwareVersion, error) {
	if len(b) != FirmwareVersionSize {
		return FirmwareVersion{}, fmt.Errorf("firmware version is %d bytes, want %d: %w", len(b), FirmwareVersionSize, ErrUnexpectedFrameSize)
	}
	return FirmwareVersion{
		Type:  binary.LittleEndian.Uint16(b[0:2]),
		Major: binary.LittleEndian.Uint16(b[2:4]),
		Minor: binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// Encode returns the wire form of v.
func (v FirmwareVersion) Encode() [FirmwareVersionSize]byte {
	var b [FirmwareVersionSize]byte
	binary.LittleEndian.PutUint16(b[0:2], v.Type)
	binary.LittleEndian.PutUint16(b[2:4], v.Major)
	binary.LittleEndian.PutUint32(b[4:8], v.Minor)
	return b
}

// String formats the version the way the vendor tooling shows it,
// e.g. V1.02.22062416.
func (v FirmwareVersion) String() string {
	return fmt.Sprintf("V%d.%02d.%d", uint32(v.Type)+1, v.Major, v.Minor)
}

// Compare orders versions by type, then major, then minor.
func (v FirmwareVersion) Compare(o FirmwareVersion) int {
	if c := cmp.Compare(v.Type, o.Type); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Major, o.Major); c != 0 {
		return c
	}
	return cmp.Compare(v.Minor, o.Minor)
}
