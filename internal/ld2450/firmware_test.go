package ld2450

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFirmwareVersion(t *testing.T) {
	v, err := DecodeFirmwareVersion([]byte{0x00, 0x00, 0x02, 0x00, 0x50, 0xA5, 0x50, 0x01})
	require.NoError(t, err)
	assert.Equal(t, FirmwareVersion{Type: 0, Major: 2, Minor: 22062416}, v)

	enc := v.Encode()
	back, err := DecodeFirmwareVersion(enc[:])
	require.NoError(t, err)
	assert.Equal(t, v, back)

	_, err = DecodeFirmwareVersion([]byte{0x00, 0x00})
	assert.ErrorIs(t, err, ErrUnexpectedFrameSize)
}

func TestFirmwareVersionString(t *testing.T) {
	v := FirmwareVersion{Type: 0, Major: 2, Minor: 22062416}
	assert.Equal(t, "V1.02.22062416", v.String())

	v = FirmwareVersion{Type: 1, Major: 12, Minor: 7}
	assert.Equal(t, "V2.12.7", v.String())
}

func TestFirmwareVersionCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b FirmwareVersion
		want int
	}{
		{"equal", FirmwareVersion{0, 1, 2}, FirmwareVersion{0, 1, 2}, 0},
		{"minor less", FirmwareVersion{0, 1, 2}, FirmwareVersion{0, 1, 3}, -1},
		{"major greater", FirmwareVersion{0, 1, 2}, FirmwareVersion{0, 0, 2}, 1},
		{"major beats minor", FirmwareVersion{0, 1, 999}, FirmwareVersion{0, 2, 0}, -1},
		{"type beats major", FirmwareVersion{1, 0, 0}, FirmwareVersion{0, 9, 9}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
			assert.Equal(t, -tt.want, tt.b.Compare(tt.a))
		})
	}
}
