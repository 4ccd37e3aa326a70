package ld2450

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Config is the radar configuration applied by Open.
type Config struct {
	Tracking         TrackingMode
	BluetoothEnabled bool
	Filtering        FilteringMode
}

// DefaultConfig is multi-target tracking with bluetooth off and no zone
// filtering.
func DefaultConfig() Config {
	return Config{Tracking: TrackingMultiple}
}

// Validate checks the configuration before anything is sent to the radar.
func (c Config) Validate() error {
	if c.Tracking != TrackingMultiple && c.Tracking != TrackingSingle {
		return fmt.Errorf("unknown tracking mode %d", c.Tracking)
	}
	return c.Filtering.Validate()
}

// TrackingMode selects single or multi target tracking.
type TrackingMode int

const (
	TrackingMultiple TrackingMode = iota
	TrackingSingle
)

// wire values of the get-tracking-mode acknowledgement
const (
	trackingCodeSingle   = 0x0001
	trackingCodeMultiple = 0x0002
)

func (m TrackingMode) String() string {
	switch m {
	case TrackingSingle:
		return "single"
	case TrackingMultiple:
		return "multiple"
	default:
		return fmt.Sprintf("TrackingMode(%d)", int(m))
	}
}

func (m TrackingMode) command() Command {
	if m == TrackingSingle {
		return CmdSingleTarget
	}
	return CmdMultiTarget
}

// Code returns the value the radar reports for m in the get-tracking-mode
// acknowledgement.
func (m TrackingMode) Code() uint16 {
	if m == TrackingSingle {
		return trackingCodeSingle
	}
	return trackingCodeMultiple
}

func decodeTrackingMode(b []byte) (TrackingMode, error) {
	switch v := decodeU16(b); v {
	case trackingCodeSingle:
		return TrackingSingle, nil
	case trackingCodeMultiple:
		return TrackingMultiple, nil
	default:
		return 0, fmt.Errorf("tracking mode %#04x: %w", v, ErrInvalidResponse)
	}
}

// MaxFilteredRegions is the number of regions the radar can hold.
const MaxFilteredRegions = 3

// FilterKind says what the radar does with targets in the filtered regions.
type FilterKind int

const (
	// FilterNone disables zone filtering.
	FilterNone FilterKind = iota
	// FilterInside drops targets inside the regions.
	FilterInside
	// FilterOutside drops targets outside the regions.
	FilterOutside
)

// zone filter type word on the wire
const (
	zoneTypeNone       = 0x0000
	zoneTypeOnlyInside = 0x0001
	zoneTypeNotInside  = 0x0002
)

func (k FilterKind) String() string {
	switch k {
	case FilterNone:
		return "none"
	case FilterInside:
		return "inside"
	case FilterOutside:
		return "outside"
	default:
		return fmt.Sprintf("FilterKind(%d)", int(k))
	}
}

// FilteredRegion is a rectangle given by two diagonal vertices, in mm, with
// the sensor at the origin. Whether the rectangle makes sense is up to the
// caller.
type FilteredRegion struct {
	XStart int16 `json:"x_start" yaml:"x_start"`
	YStart int16 `json:"y_start" yaml:"y_start"`
	XEnd   int16 `json:"x_end" yaml:"x_end"`
	YEnd   int16 `json:"y_end" yaml:"y_end"`
}

// FilteringMode is the zone filter configuration.
type FilteringMode struct {
	Kind    FilterKind
	Regions []FilteredRegion
}

// Validate enforces the region limit and that FilterNone carries no regions.
// An all-zero region is rejected: on the wire it marks an unused slot, so
// the radar would read it back as absent. Inside or Outside with no regions
// is allowed; the radar then drops nothing, or reports nothing.
func (f FilteringMode) Validate() error {
	switch f.Kind {
	case FilterNone:
		if len(f.Regions) > 0 {
			return errors.New("zone filtering is off but regions are set")
		}
	case FilterInside, FilterOutside:
		if len(f.Regions) > MaxFilteredRegions {
			return fmt.Errorf("%d filtered regions, at most %d allowed", len(f.Regions), MaxFilteredRegions)
		}
		for i, r := range f.Regions {
			if r == (FilteredRegion{}) {
				return fmt.Errorf("filtered region %d is all zero, which marks an unused region", i)
			}
		}
	default:
		return fmt.Errorf("unknown filter kind %d", f.Kind)
	}
	return nil
}

// ZoneFilterSize is the length of a zone filter block: the type word plus
// three regions of four coordinates.
const ZoneFilterSize = 2 + MaxFilteredRegions*8

// Encode returns the zone filter block for f. Unused regions are zero.
func (f FilteringMode) Encode() []byte {
	b := make([]byte, ZoneFilterSize)
	switch f.Kind {
	case FilterInside:
		putU16(b, zoneTypeNotInside)
	case FilterOutside:
		putU16(b, zoneTypeOnlyInside)
	default:
		putU16(b, zoneTypeNone)
	}
	for i, r := range f.Regions {
		off := 2 + i*8
		binary.LittleEndian.PutUint16(b[off:], uint16(r.XStart))
		binary.LittleEndian.PutUint16(b[off+2:], uint16(r.YStart))
		binary.LittleEndian.PutUint16(b[off+4:], uint16(r.XEnd))
		binary.LittleEndian.PutUint16(b[off+6:], uint16(r.YEnd))
	}
	return b
}

// DecodeFilteringMode parses a zone filter block. All-zero regions are
// treated as unused.
func DecodeFilteringMode(b []byte) (FilteringMode, error) {
	if len(b) != ZoneFilterSize {
		return FilteringMode{}, fmt.Errorf("zone filter block is %d bytes: %w", len(b), ErrUnexpectedFrameSize)
	}
	var f FilteringMode
	switch v := decodeU16(b); v {
	case zoneTypeNone:
		f.Kind = FilterNone
		return f, nil
	case zoneTypeOnlyInside:
		f.Kind = FilterOutside
	case zoneTypeNotInside:
		f.Kind = FilterInside
	default:
		return FilteringMode{}, fmt.Errorf("zone filter type %#04x: %w", v, ErrInvalidResponse)
	}
	for i := 0; i < MaxFilteredRegions; i++ {
		off := 2 + i*8
		r := FilteredRegion{
			XStart: int16(binary.LittleEndian.Uint16(b[off:])),
			YStart: int16(binary.LittleEndian.Uint16(b[off+2:])),
			XEnd:   int16(binary.LittleEndian.Uint16(b[off+4:])),
			YEnd:   int16(binary.LittleEndian.Uint16(b[off+6:])),
		}
		if r == (FilteredRegion{}) {
			continue
		}
		f.Regions = append(f.Regions, r)
	}
	return f, nil
}
