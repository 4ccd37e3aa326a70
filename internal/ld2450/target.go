package ld2450

import "fmt"

const (
	// SlotSize is the size of one target slot in a data frame.
	SlotSize = 8
	// SlotsPerFrame is the fixed number of tracking slots per frame.
	SlotsPerFrame = 3
	// FramePayloadSize is the size of a data frame between header and trailer.
	FramePayloadSize = SlotSize * SlotsPerFrame
)

// MaxRange is the rated detection distance in mm.
const MaxRange = 6000

// Target is one tracked target as reported by the radar.
type Target struct {
	// X is the horizontal offset from the sensor in mm.
	X int16 `json:"x_mm"`
	// Y is the distance in front of the sensor in mm.
	Y int16 `json:"y_mm"`
	// Speed in cm/s relative to the radar. Negative values are targets
	// moving towards the radar.
	//
	// This is only the radial component: s_measured = s_true * cos(θ),
	// so a target moving tangentially reads 0.
	Speed int16 `json:"speed_cms"`
	// Resolution is the distance gate size in mm.
	Resolution uint16 `json:"resolution_mm"`
}

// Untracked reports whether the slot is empty (all fields zero).
func (t Target) Untracked() bool {
	return t.X == 0 && t.Y == 0 && t.Speed == 0 && t.Resolution == 0
}

// Approaching reports whether the target moves towards the radar.
func (t Target) Approaching() bool {
	return t.Speed < 0
}

// DecodeTarget decodes one 8-byte slot.
func DecodeTarget(b []byte) (Target, error) {
	if len(b) != SlotSize {
		return Target{}, fmt.Errorf("target slot is %d bytes, want %d: %w", len(b), SlotSize, ErrUnexpectedFrameSize)
	}
	return Target{
		X:          DecodeWeirdSign([2]byte{b[0], b[1]}),
		Y:          DecodeWeirdSign([2]byte{b[2], b[3]}),
		Speed:      DecodeWeirdSign([2]byte{b[4], b[5]}),
		Resolution: decodeU16(b[6:8]),
	}, nil
}

// Encode returns the slot bytes for t.
func (t Target) Encode() [SlotSize]byte {
	var b [SlotSize]byte
	x, y, s := EncodeWeirdSign(t.X), EncodeWeirdSign(t.Y), EncodeWeirdSign(t.Speed)
	copy(b[0:2], x[:])
	copy(b[2:4], y[:])
	copy(b[4:6], s[:])
	putU16(b[6:8], t.Resolution)
	return b
}

// DecodeTargets decodes the three slots of a frame payload. Untracked slots
// are dropped; the remaining targets keep their slot order.
func DecodeTargets(payload *[FramePayloadSize]byte) []Target {
	targets := make([]Target, 0, SlotsPerFrame)
	for i := 0; i < SlotsPerFrame; i++ {
		// slot length is fixed by the loop bounds, the error cannot happen
		t, _ := DecodeTarget(payload[i*SlotSize : (i+1)*SlotSize])
		if t.Untracked() {
			continue
		}
		targets = append(targets, t)
	}
	return targets
}

// EncodeFrame builds a complete data frame, header and trailer included, for
// up to three targets. Missing slots are left zero (untracked).
func EncodeFrame(targets []Target) ([]byte, error) {
	if len(targets) > SlotsPerFrame {
		return nil, fmt.Errorf("%d targets do not fit in %d slots", len(targets), SlotsPerFrame)
	}
	frame := make([]byte, 0, len(dataHeader)+FramePayloadSize+len(dataTrailer))
	frame = append(frame, dataHeader[:]...)
	var payload [FramePayloadSize]byte
	for i, t := range targets {
		slot := t.Encode()
		copy(payload[i*SlotSize:], slot[:])
	}
	frame = append(frame, payload[:]...)
	frame = append(frame, dataTrailer[:]...)
	return frame, nil
}
