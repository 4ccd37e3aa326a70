package ld2450

import (
	"bytes"
	"fmt"
	"io"

	"github.com/banshee-data/ld2450/internal/monitoring"
)

var (
	dataHeader  = [4]byte{0xAA, 0xFF, 0x03, 0x00}
	dataTrailer = [2]byte{0x55, 0xCC}
)

// syncHeader consumes bytes until the full data header has been matched and
// returns the number of bytes skipped on the way.
//
// On a mismatch the search does not always restart from zero: if the
// offending byte is itself the first header byte it may open the next
// header, so matching continues at position 1.
func syncHeader(r io.ByteReader) (int, error) {
	skipped := 0
	for i := 0; i < len(dataHeader); {
		b, err := r.ReadByte()
		if err != nil {
			return skipped, err
		}
		if b == dataHeader[i] {
			i++
			continue
		}
		skipped += i + 1
		if b == dataHeader[0] {
			skipped--
			i = 1
		} else {
			i = 0
		}
	}
	return skipped, nil
}

// NextTargets blocks until the next complete data frame has been read and
// returns its tracked targets, in slot order (at most three).
//
// A frame with a bad trailer yields ErrUnexpectedFrameSize; calling again
// resumes the search right after it. Transport failures wrap ErrSerial.
func (d *Driver) NextTargets() ([]Target, error) {
	switch d.mode {
	case ModeDesynchronized:
		return nil, ErrDesynchronized
	case ModeConfiguration:
		return nil, ErrConfigurationMode
	}

	skipped, err := syncHeader(d.rd)
	if err != nil {
		return nil, d.serialErr("seeking frame header", err)
	}
	if skipped > 0 {
		monitoring.Debugf("ld2450: skipped %d bytes before frame header", skipped)
	}

	var payload [FramePayloadSize]byte
	if _, err := io.ReadFull(d.rd, payload[:]); err != nil {
		return nil, d.serialErr("reading frame payload", err)
	}

	var trailer [len(dataTrailer)]byte
	if _, err := io.ReadFull(d.rd, trailer[:]); err != nil {
		return nil, d.serialErr("reading frame trailer", err)
	}
	if !bytes.Equal(trailer[:], dataTrailer[:]) {
		return nil, fmt.Errorf("frame trailer % X: %w", trailer, ErrUnexpectedFrameSize)
	}

	return DecodeTargets(&payload), nil
}
