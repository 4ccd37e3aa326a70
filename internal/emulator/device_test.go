package emulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ld2450/internal/ld2450"
	"github.com/banshee-data/ld2450/internal/testutil"
)

var walker = ld2450.Target{X: -782, Y: 1713, Speed: -16, Resolution: 320}

func TestDriverReadsEmittedFrames(t *testing.T) {
	dev := New()
	require.NoError(t, dev.SetTargets(walker))
	require.NoError(t, dev.Tick(0))

	d := ld2450.New(dev)
	targets, err := d.NextTargets()
	require.NoError(t, err)
	assert.Equal(t, []ld2450.Target{walker}, targets)
}

func TestDriverResyncsThroughNoise(t *testing.T) {
	dev := New()
	require.NoError(t, dev.SetTargets(walker))
	dev.Inject([]byte{0x00, 0xAA, 0xFF, 0x13})
	require.NoError(t, dev.Tick(0))

	targets, err := ld2450.New(dev).NextTargets()
	require.NoError(t, err)
	assert.Equal(t, []ld2450.Target{walker}, targets)
}

func TestBluetoothToggle(t *testing.T) {
	dev := New()
	d := ld2450.New(dev)
	assert.True(t, dev.Bluetooth(), "factory setting")

	require.NoError(t, d.SetBluetoothEnabled(false))
	assert.False(t, dev.Bluetooth())
	assert.False(t, dev.InConfigMode())
	assert.Equal(t, ld2450.ModeNormal, d.Mode())

	require.NoError(t, d.SetBluetoothEnabled(true))
	assert.True(t, dev.Bluetooth())

	assert.Equal(t, []ld2450.Command{
		ld2450.CmdEnterConfig, ld2450.CmdSetBluetooth, ld2450.CmdEnterConfig,
		ld2450.CmdEnterConfig, ld2450.CmdSetBluetooth, ld2450.CmdEnterConfig,
	}, dev.Commands())
}

func TestReadBacks(t *testing.T) {
	dev := New()
	d := ld2450.New(dev)

	fw, err := d.FirmwareVersion()
	require.NoError(t, err)
	assert.Equal(t, "V1.02.22062416", fw.String())

	dev.SetFirmware(ld2450.FirmwareVersion{Type: 0, Major: 3, Minor: 1})
	fw, err = d.FirmwareVersion()
	require.NoError(t, err)
	assert.Equal(t, "V1.03.1", fw.String())

	mode, err := d.TrackingMode()
	require.NoError(t, err)
	assert.Equal(t, ld2450.TrackingMultiple, mode)

	require.NoError(t, d.SetTrackingMode(ld2450.TrackingSingle))
	mode, err = d.TrackingMode()
	require.NoError(t, err)
	assert.Equal(t, ld2450.TrackingSingle, mode)
}

func TestApplyAndZoneFiltering(t *testing.T) {
	dev := New()
	cfg := ld2450.Config{
		Tracking:         ld2450.TrackingMultiple,
		BluetoothEnabled: false,
		Filtering: ld2450.FilteringMode{
			Kind:    ld2450.FilterInside,
			Regions: []ld2450.FilteredRegion{{XStart: -500, YStart: 0, XEnd: 500, YEnd: 1000}},
		},
	}

	d, err := ld2450.Open(dev, cfg)
	require.NoError(t, err)
	assert.False(t, dev.Bluetooth())
	if diff := cmp.Diff(cfg.Filtering, dev.Filtering()); diff != "" {
		t.Errorf("device filter mismatch (-want +got):\n%s", diff)
	}

	got, err := d.ZoneFiltering()
	require.NoError(t, err)
	assert.Equal(t, cfg.Filtering, got)

	// one target inside the excluded region, one outside
	inside := ld2450.Target{X: 0, Y: 500, Resolution: 320}
	outside := ld2450.Target{X: 0, Y: 2500, Resolution: 320}
	require.NoError(t, dev.SetTargets(inside, outside))
	require.NoError(t, dev.Tick(0))

	targets, err := d.NextTargets()
	require.NoError(t, err)
	assert.Equal(t, []ld2450.Target{outside}, targets)
}

func TestZoneFilteringWithoutRegions(t *testing.T) {
	a := ld2450.Target{X: 100, Y: 1000, Resolution: 320}
	b := ld2450.Target{X: -100, Y: 2000, Resolution: 320}

	tests := []struct {
		kind ld2450.FilterKind
		want []ld2450.Target
	}{
		{ld2450.FilterInside, []ld2450.Target{a, b}},
		{ld2450.FilterOutside, []ld2450.Target{}},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			dev := New()
			d, err := ld2450.Open(dev, ld2450.Config{Filtering: ld2450.FilteringMode{Kind: tt.kind}})
			require.NoError(t, err)

			got, err := d.ZoneFiltering()
			require.NoError(t, err)
			assert.Equal(t, ld2450.FilteringMode{Kind: tt.kind}, got)

			require.NoError(t, dev.SetTargets(a, b))
			require.NoError(t, dev.Tick(0))
			targets, err := d.NextTargets()
			require.NoError(t, err)
			assert.Equal(t, tt.want, targets)
		})
	}
}

func TestSingleTrackingReportsOneTarget(t *testing.T) {
	dev := New()
	d, err := ld2450.Open(dev, ld2450.Config{Tracking: ld2450.TrackingSingle})
	require.NoError(t, err)

	a := ld2450.Target{X: 100, Y: 1000, Resolution: 320}
	b := ld2450.Target{X: -100, Y: 2000, Resolution: 320}
	require.NoError(t, dev.SetTargets(a, b))
	require.NoError(t, dev.Tick(0))

	targets, err := d.NextTargets()
	require.NoError(t, err)
	assert.Equal(t, []ld2450.Target{a}, targets)
}

func TestBaudRateWaitsForRestart(t *testing.T) {
	dev := New()
	d := ld2450.New(dev)

	require.NoError(t, d.SetBaudRate(ld2450.Baud115200))
	assert.Equal(t, ld2450.Baud256000, dev.BaudRate())

	require.NoError(t, d.Reboot())
	assert.Equal(t, ld2450.Baud115200, dev.BaudRate())
	assert.Equal(t, 1, dev.Restarts())
	assert.Equal(t, ld2450.ModeNormal, d.Mode())
}

func TestFactoryResetWaitsForRestart(t *testing.T) {
	dev := New()
	d := ld2450.New(dev)

	require.NoError(t, d.SetBluetoothEnabled(false))
	require.NoError(t, d.SetBaudRate(ld2450.Baud9600))
	require.NoError(t, d.FactoryReset())
	assert.False(t, dev.Bluetooth())

	dev.PowerCycle()
	assert.True(t, dev.Bluetooth())
	assert.Equal(t, ld2450.Baud256000, dev.BaudRate())
}

func TestNoFramesInConfigMode(t *testing.T) {
	dev := New()
	require.NoError(t, dev.SetTargets(walker))
	require.NoError(t, dev.Tick(0))

	// an enter-config discards unread frames and stops streaming
	_, err := dev.Write(ld2450.EncodeCommandData(ld2450.CmdEnterConfig, 0x0001))
	require.NoError(t, err)
	assert.True(t, dev.InConfigMode())
	require.NoError(t, dev.Tick(0))

	_, err = dev.Write(ld2450.EncodeCommand(ld2450.CmdGetFirmware))
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, err := dev.Read(buf)
	require.NoError(t, err)
	fw := DefaultFirmware.Encode()
	assert.Equal(t, testutil.AckFrame(fw[:]), buf[:n])
}

func TestCommandSplitAcrossWrites(t *testing.T) {
	dev := New()
	frame := ld2450.EncodeCommandData(ld2450.CmdEnterConfig, 0x0001)

	for _, b := range frame {
		_, err := dev.Write([]byte{b})
		require.NoError(t, err)
	}
	assert.True(t, dev.InConfigMode())

	_, err := dev.Write(append([]byte{0x01, 0x02}, frame...))
	require.NoError(t, err)
	assert.False(t, dev.InConfigMode())
}

func TestDesyncRecoveryAfterPowerCycle(t *testing.T) {
	dev := New()
	port := &failingWriter{Device: dev, failAt: 2}
	d := ld2450.New(port)

	err := d.SetBluetoothEnabled(false)
	require.ErrorIs(t, err, ld2450.ErrDesynchronized)
	assert.True(t, dev.InConfigMode(), "close-out never arrived")

	dev.PowerCycle()
	d.Reset()
	require.NoError(t, dev.SetTargets(walker))
	require.NoError(t, dev.Tick(0))

	targets, err := d.NextTargets()
	require.NoError(t, err)
	assert.Len(t, targets, 1)
}

func TestSetTargetsLimit(t *testing.T) {
	assert.Error(t, New().SetTargets(make([]ld2450.Target, 4)...))
}

func TestMoveWrapsAround(t *testing.T) {
	dev := New()
	require.NoError(t, dev.SetTargets(
		ld2450.Target{Y: MinRange + 10, Speed: -100, Resolution: 320},
		ld2450.Target{Y: MaxRange - 10, Speed: 100, Resolution: 320},
		ld2450.Target{Y: 2000, Resolution: 320},
	))
	require.NoError(t, dev.Tick(time.Second))

	d := ld2450.New(dev)
	targets, err := d.NextTargets()
	require.NoError(t, err)
	require.Len(t, targets, 3)
	assert.Equal(t, int16(MaxRange), targets[0].Y)
	assert.Equal(t, int16(MinRange), targets[1].Y)
	assert.Equal(t, int16(2000), targets[2].Y)
}

func TestRunAndClose(t *testing.T) {
	dev := New()
	require.NoError(t, dev.SetTargets(walker))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dev.Run(ctx, 5*time.Millisecond) }()

	d := ld2450.New(dev)
	targets, err := d.NextTargets()
	require.NoError(t, err)
	assert.Len(t, targets, 1)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	require.NoError(t, dev.Close())
	_, err = dev.Write([]byte{0x00})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, dev.Tick(0), ErrClosed)

	_, err = d.NextTargets()
	assert.ErrorIs(t, err, ld2450.ErrSerial)
}

// failingWriter fails the write with index failAt, like a serial port
// unplugged at the wrong moment.
type failingWriter struct {
	*Device
	failAt int
	writes int
}

func (f *failingWriter) Write(p []byte) (int, error) {
	i := f.writes
	f.writes++
	if i == f.failAt {
		return 0, errors.New("write failed")
	}
	return f.Device.Write(p)
}
