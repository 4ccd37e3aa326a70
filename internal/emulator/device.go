// Package emulator simulates an LD2450 on the far end of a serial line.
//
// A Device is an io.ReadWriteCloser: the host writes command frames to it
// and reads data frames and acknowledgements back, exactly as it would from
// a UART. It backs the service's -dev mode and the integration tests.
package emulator

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/ld2450/internal/ld2450"
)

// ErrClosed is returned by Write and Tick after Close.
var ErrClosed = errors.New("emulator: device closed")

var (
	commandHeader  = []byte{0xFD, 0xFC, 0xFB, 0xFA}
	commandTrailer = []byte{0x04, 0x03, 0x02, 0x01}
)

// Range limits of the simulated detection area, in mm.
const (
	MinRange = 300
	MaxRange = ld2450.MaxRange
)

// maxPending bounds unread frames; older ones are dropped as a UART overrun
// would.
const maxPending = 64

// DefaultFirmware is what a Device reports unless SetFirmware is called.
var DefaultFirmware = ld2450.FirmwareVersion{Type: 0, Major: 2, Minor: 22062416}

type settings struct {
	bluetooth bool
	tracking  ld2450.TrackingMode
	baud      ld2450.BaudRate
	filter    ld2450.FilteringMode
}

func factorySettings() settings {
	return settings{
		bluetooth: true,
		tracking:  ld2450.TrackingMultiple,
		baud:      ld2450.DefaultBaudRate,
	}
}

// Device is a simulated radar.
type Device struct {
	mu   sync.Mutex
	cond *sync.Cond

	// out holds chunks for the host; each Read returns from one chunk at
	// most, so a frame is never split across two reads by a neighbour.
	out [][]byte
	in  []byte

	config         bool
	closed         bool
	restartPending bool
	factoryPending bool

	current  settings
	nextBaud ld2450.BaudRate
	firmware ld2450.FirmwareVersion
	targets  []ld2450.Target
	restarts int
	commands []ld2450.Command
}

// New returns a device with factory settings and no targets.
func New() *Device {
	d := &Device{
		current:  factorySettings(),
		nextBaud: ld2450.DefaultBaudRate,
		firmware: DefaultFirmware,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Read blocks until the device has output or is closed.
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for len(d.out) == 0 && !d.closed {
		d.cond.Wait()
	}
	if d.closed {
		return 0, io.EOF
	}
	n := copy(p, d.out[0])
	if n == len(d.out[0]) {
		d.out = d.out[1:]
	} else {
		d.out[0] = d.out[0][n:]
	}
	return n, nil
}

// Write feeds command bytes to the device. Complete frames are handled
// before Write returns, so any acknowledgement is already readable.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}
	d.in = append(d.in, p...)
	d.parse()
	return len(p), nil
}

// Close makes pending and future reads return io.EOF.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cond.Broadcast()
	return nil
}

func (d *Device) parse() {
	for {
		i := bytes.Index(d.in, commandHeader)
		if i < 0 {
			// keep a possible partial header
			if keep := len(commandHeader) - 1; len(d.in) > keep {
				d.in = append([]byte(nil), d.in[len(d.in)-keep:]...)
			}
			return
		}
		d.in = d.in[i:]

		hdr := len(commandHeader) + 2
		if len(d.in) < hdr {
			return
		}
		n := int(binary.LittleEndian.Uint16(d.in[len(commandHeader):hdr]))
		end := hdr + n + len(commandTrailer)
		if len(d.in) < end {
			return
		}
		body := d.in[hdr : hdr+n]
		if bytes.Equal(d.in[hdr+n:end], commandTrailer) && n >= 2 {
			d.handle(ld2450.Command(binary.LittleEndian.Uint16(body)), body[2:])
		}
		d.in = d.in[end:]
	}
}

func (d *Device) reply(payload []byte) {
	d.out = append(d.out, ld2450.EncodeAck(payload))
	d.cond.Broadcast()
}

func (d *Device) handle(cmd ld2450.Command, data []byte) {
	d.commands = append(d.commands, cmd)

	if !d.config {
		if cmd == ld2450.CmdEnterConfig {
			d.config = true
			// unread frames are lost when the radar stops streaming
			d.out = nil
		}
		return
	}

	switch cmd {
	case ld2450.CmdEnterConfig, ld2450.CmdExitConfig:
		d.reply([]byte{0x00, 0x00})
		d.config = false
		if d.restartPending {
			d.restart()
		}
	case ld2450.CmdSingleTarget:
		d.current.tracking = ld2450.TrackingSingle
	case ld2450.CmdMultiTarget:
		d.current.tracking = ld2450.TrackingMultiple
	case ld2450.CmdGetTrackingMode:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], d.current.tracking.Code())
		d.reply(b[:])
	case ld2450.CmdGetFirmware:
		b := d.firmware.Encode()
		d.reply(b[:])
	case ld2450.CmdSetBaudRate:
		if len(data) >= 2 {
			if b, ok := baudFromCode(binary.LittleEndian.Uint16(data)); ok {
				d.nextBaud = b
			}
		}
	case ld2450.CmdFactoryRestore:
		d.factoryPending = true
	case ld2450.CmdRestart:
		d.restartPending = true
	case ld2450.CmdSetBluetooth:
		if len(data) >= 2 {
			d.current.bluetooth = binary.LittleEndian.Uint16(data) != 0
		}
	case ld2450.CmdGetZoneFiltering:
		d.reply(d.current.filter.Encode())
	case ld2450.CmdSetZoneFiltering:
		if f, err := ld2450.DecodeFilteringMode(data); err == nil {
			d.current.filter = f
		}
	}
}

func baudFromCode(code uint16) (ld2450.BaudRate, bool) {
	for b := ld2450.Baud9600; b <= ld2450.Baud460800; b++ {
		if b.Code() == code {
			return b, true
		}
	}
	return 0, false
}

// restart applies settings that wait for a restart. Caller holds mu.
func (d *Device) restart() {
	d.restarts++
	if d.factoryPending {
		d.current = factorySettings()
		d.nextBaud = ld2450.DefaultBaudRate
		d.factoryPending = false
	}
	d.current.baud = d.nextBaud
	d.restartPending = false
	d.config = false
}

// PowerCycle restarts the device as if its supply had been interrupted,
// dropping out of configuration mode.
func (d *Device) PowerCycle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.in = nil
	d.restart()
}

// SetTargets replaces the simulated targets.
func (d *Device) SetTargets(targets ...ld2450.Target) error {
	if len(targets) > ld2450.SlotsPerFrame {
		return fmt.Errorf("emulator: %d targets, at most %d", len(targets), ld2450.SlotsPerFrame)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets = append([]ld2450.Target(nil), targets...)
	return nil
}

// SetFirmware changes the reported firmware version.
func (d *Device) SetFirmware(v ld2450.FirmwareVersion) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.firmware = v
}

// Inject queues raw bytes for the host, e.g. line noise.
func (d *Device) Inject(b []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out = append(d.out, append([]byte(nil), b...))
	d.cond.Broadcast()
}

// Tick moves the targets by dt and, in normal mode, emits one data frame
// with the targets the current settings let through.
func (d *Device) Tick(dt time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	d.move(dt)
	if d.config {
		return nil
	}
	frame, err := ld2450.EncodeFrame(d.visible())
	if err != nil {
		return err
	}
	if len(d.out) >= maxPending {
		d.out = d.out[1:]
	}
	d.out = append(d.out, frame)
	d.cond.Broadcast()
	return nil
}

// Run calls Tick every interval until ctx is done or the device is closed.
func (d *Device) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := d.Tick(interval); err != nil {
			return err
		}
	}
}

// move advances each target along y by its radial speed. A target leaving
// the range re-enters from the opposite end.
func (d *Device) move(dt time.Duration) {
	for i := range d.targets {
		t := &d.targets[i]
		if t.Speed == 0 {
			continue
		}
		y := int(t.Y) + int(float64(t.Speed)*10*dt.Seconds())
		switch {
		case y < MinRange:
			y = MaxRange
		case y > MaxRange:
			y = MinRange
		}
		t.Y = int16(y)
	}
}

func (d *Device) visible() []ld2450.Target {
	out := make([]ld2450.Target, 0, len(d.targets))
	for _, t := range d.targets {
		if !d.passes(t) {
			continue
		}
		out = append(out, t)
		if d.current.tracking == ld2450.TrackingSingle {
			break
		}
	}
	return out
}

func (d *Device) passes(t ld2450.Target) bool {
	f := d.current.filter
	if f.Kind == ld2450.FilterNone {
		return true
	}
	// with no regions nothing is inside: Inside drops nothing and Outside
	// reports nothing
	inside := false
	for _, r := range f.Regions {
		if contains(r, t) {
			inside = true
			break
		}
	}
	if f.Kind == ld2450.FilterInside {
		return !inside
	}
	return inside
}

func contains(r ld2450.FilteredRegion, t ld2450.Target) bool {
	x0, x1 := min(r.XStart, r.XEnd), max(r.XStart, r.XEnd)
	y0, y1 := min(r.YStart, r.YEnd), max(r.YStart, r.YEnd)
	return t.X >= x0 && t.X <= x1 && t.Y >= y0 && t.Y <= y1
}

// Bluetooth reports whether the bluetooth module is on.
func (d *Device) Bluetooth() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current.bluetooth
}

// Tracking returns the tracking mode in effect.
func (d *Device) Tracking() ld2450.TrackingMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current.tracking
}

// BaudRate returns the serial speed in effect. A new rate is only used
// after a restart.
func (d *Device) BaudRate() ld2450.BaudRate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current.baud
}

// Filtering returns the zone filter in effect.
func (d *Device) Filtering() ld2450.FilteringMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current.filter
}

// InConfigMode reports whether the device is waiting for commands.
func (d *Device) InConfigMode() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

// Restarts counts restarts, power cycles included.
func (d *Device) Restarts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.restarts
}

// Commands returns every well-formed command received, in order.
func (d *Device) Commands() []ld2450.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ld2450.Command(nil), d.commands...)
}
