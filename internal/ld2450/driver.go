// Package ld2450 is a driver for the HLK-LD2450 24 GHz radar.
//
// The radar streams target frames over a serial link in normal mode and
// accepts framed commands once switched to configuration mode. The driver
// does no locking and no retries: a single goroutine must own the transport,
// and every failure is returned to the caller as it happens.
package ld2450

import (
	"bufio"
	"fmt"
	"io"

	"github.com/banshee-data/ld2450/internal/monitoring"
)

// Mode is the driver's belief about the radar's operating mode.
type Mode int

const (
	// ModeNormal: the radar streams target frames.
	ModeNormal Mode = iota
	// ModeConfiguration: the radar accepts command frames and does not stream.
	ModeConfiguration
	// ModeDesynchronized: a mode switch failed half way and the radar may be
	// in either mode.
	ModeDesynchronized
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeConfiguration:
		return "configuration"
	case ModeDesynchronized:
		return "desynchronized"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// closeAckSize is the payload length of the acknowledgement that ends a
// configuration transaction.
const closeAckSize = 2

const (
	trackingAckSize   = 2
	zoneFilterAckSize = ZoneFilterSize
)

// Driver talks to one radar over a byte stream.
type Driver struct {
	rd   *bufio.Reader
	w    io.Writer
	mode Mode
}

// NewRecycled returns a read-only driver that keeps whatever configuration
// the radar already has. Settings persist across power cycles of the radar,
// so this can give surprising results; it is mostly useful for logging and
// tests where no transmit line is wired.
func NewRecycled(r io.Reader) *Driver {
	return &Driver{rd: bufio.NewReader(r)}
}

// New returns a driver that can read targets and send commands. No command
// is sent until one of the configuration methods is called.
func New(rw io.ReadWriter) *Driver {
	return &Driver{rd: bufio.NewReader(rw), w: rw}
}

// Open returns a driver and applies cfg to the radar. The driver is returned
// even if applying fails so the caller can look at its Mode.
func Open(rw io.ReadWriter, cfg Config) (*Driver, error) {
	d := New(rw)
	return d, d.Apply(cfg)
}

// Mode returns the driver's current view of the radar mode.
func (d *Driver) Mode() Mode {
	return d.mode
}

// Reset puts a desynchronized driver back in normal mode. Call it only after
// the radar has been power cycled.
func (d *Driver) Reset() {
	d.mode = ModeNormal
}

func (d *Driver) serialErr(op string, err error) error {
	monitoring.Logf("ld2450: %s: %v", op, err)
	return fmt.Errorf("%w: %s: %w", ErrSerial, op, err)
}

func (d *Driver) send(frame []byte) error {
	if err := writeFrame(d.w, frame); err != nil {
		monitoring.Logf("ld2450: write: %v", err)
		return err
	}
	return nil
}

// request sends a command and reads its acknowledgement into buf.
func (d *Driver) request(frame, buf []byte) error {
	if err := d.send(frame); err != nil {
		return err
	}
	return ReadAck(d.rd, buf)
}

func (d *Driver) desync(step string, err error) error {
	d.mode = ModeDesynchronized
	monitoring.Logf("ld2450: %s failed, radar mode unknown: %v", step, err)
	return fmt.Errorf("%w: %s: %v", ErrDesynchronized, step, err)
}

// configure runs body inside a configuration transaction:
//
//  1. enter-config is written; on failure the radar may or may not have
//     switched, so the driver is desynchronized.
//  2. body runs and its result is kept.
//  3. enter-config is written again as the close-out signal and a 2-byte
//     acknowledgement is awaited; on failure the driver is desynchronized.
//
// Losing track of the mode dominates: a failed bracket is reported as
// ErrDesynchronized whatever body returned.
func (d *Driver) configure(body func() error) error {
	if d.w == nil {
		return ErrReadOnly
	}
	switch d.mode {
	case ModeDesynchronized:
		return ErrDesynchronized
	case ModeConfiguration:
		return ErrConfigurationMode
	}

	if err := d.send(EncodeCommandData(CmdEnterConfig, enterConfigValue)); err != nil {
		return d.desync("entering configuration mode", err)
	}
	d.mode = ModeConfiguration

	result := body()

	if err := d.send(EncodeCommandData(CmdEnterConfig, enterConfigValue)); err != nil {
		return d.desync("leaving configuration mode", err)
	}
	var ack [closeAckSize]byte
	if err := ReadAck(d.rd, ack[:]); err != nil {
		return d.desync("leaving configuration mode", err)
	}
	d.mode = ModeNormal

	return result
}

// SetBluetoothEnabled switches the radar's bluetooth module on or off.
func (d *Driver) SetBluetoothEnabled(enabled bool) error {
	return d.configure(func() error {
		return d.send(EncodeCommandData(CmdSetBluetooth, boolWord(enabled)))
	})
}

// SetTrackingMode selects single or multi target tracking.
func (d *Driver) SetTrackingMode(m TrackingMode) error {
	if m != TrackingSingle && m != TrackingMultiple {
		return fmt.Errorf("unknown tracking mode %d", m)
	}
	return d.configure(func() error {
		return d.send(EncodeCommand(m.command()))
	})
}

// TrackingMode reads the tracking mode from the radar.
func (d *Driver) TrackingMode() (TrackingMode, error) {
	var mode TrackingMode
	err := d.configure(func() error {
		var buf [trackingAckSize]byte
		if err := d.request(EncodeCommand(CmdGetTrackingMode), buf[:]); err != nil {
			return err
		}
		var err error
		mode, err = decodeTrackingMode(buf[:])
		return err
	})
	return mode, err
}

// FirmwareVersion reads the firmware version from the radar.
func (d *Driver) FirmwareVersion() (FirmwareVersion, error) {
	var v FirmwareVersion
	err := d.configure(func() error {
		var buf [FirmwareVersionSize]byte
		if err := d.request(EncodeCommand(CmdGetFirmware), buf[:]); err != nil {
			return err
		}
		var err error
		v, err = DecodeFirmwareVersion(buf[:])
		return err
	})
	return v, err
}

// SetBaudRate changes the radar's serial speed. The radar keeps using the
// old speed until it restarts, after which the transport has to be reopened
// at the new speed.
func (d *Driver) SetBaudRate(b BaudRate) error {
	if !b.valid() {
		return fmt.Errorf("unknown baud rate %d", int(b))
	}
	return d.configure(func() error {
		return d.send(EncodeCommandData(CmdSetBaudRate, b.Code()))
	})
}

// SetZoneFiltering writes the zone filter configuration.
func (d *Driver) SetZoneFiltering(f FilteringMode) error {
	if err := f.Validate(); err != nil {
		return err
	}
	return d.configure(func() error {
		return d.send(EncodeCommandPayload(CmdSetZoneFiltering, f.Encode()))
	})
}

// ZoneFiltering reads the zone filter configuration from the radar.
func (d *Driver) ZoneFiltering() (FilteringMode, error) {
	var f FilteringMode
	err := d.configure(func() error {
		var buf [zoneFilterAckSize]byte
		if err := d.request(EncodeCommandData(CmdGetZoneFiltering, 0x0001), buf[:]); err != nil {
			return err
		}
		var err error
		f, err = DecodeFilteringMode(buf[:])
		return err
	})
	return f, err
}

// FactoryReset restores factory settings. They take effect, baud rate
// included, when the radar next restarts.
func (d *Driver) FactoryReset() error {
	return d.configure(func() error {
		return d.send(EncodeCommand(CmdFactoryRestore))
	})
}

// Reboot restarts the radar. It comes back in normal mode.
func (d *Driver) Reboot() error {
	return d.configure(func() error {
		return d.send(EncodeCommand(CmdRestart))
	})
}

// Apply writes every field of cfg in a single transaction, in a fixed
// order: tracking mode, bluetooth, zone filtering. The first failing
// command stops the rest.
func (d *Driver) Apply(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return d.configure(func() error {
		if err := d.send(EncodeCommand(cfg.Tracking.command())); err != nil {
			return err
		}
		if err := d.send(EncodeCommandData(CmdSetBluetooth, boolWord(cfg.BluetoothEnabled))); err != nil {
			return err
		}
		return d.send(EncodeCommandPayload(CmdSetZoneFiltering, cfg.Filtering.Encode()))
	})
}

func boolWord(b bool) uint16 {
	if b {
		return 0x0001
	}
	return 0x0000
}
