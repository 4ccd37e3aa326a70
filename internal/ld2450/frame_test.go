package ld2450

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ld2450/internal/monitoring"
	"github.com/banshee-data/ld2450/internal/testutil"
)

var sampleTarget = Target{X: -782, Y: 1713, Speed: -16, Resolution: 320}

func readerDriver(stream []byte) *Driver {
	return NewRecycled(bytes.NewReader(stream))
}

func TestNextTargets_SingleFrame(t *testing.T) {
	d := readerDriver(testutil.DataFrame(testutil.SampleSlot))

	targets, err := d.NextTargets()
	require.NoError(t, err)
	if diff := cmp.Diff([]Target{sampleTarget}, targets); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestNextTargets_NoTargets(t *testing.T) {
	d := readerDriver(testutil.DataFrame())

	targets, err := d.NextTargets()
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestNextTargets_DropsUntrackedSlotsKeepingOrder(t *testing.T) {
	second := Target{X: 250, Y: 4000, Speed: 35, Resolution: 320}
	slot := second.Encode()
	d := readerDriver(testutil.DataFrame(testutil.SampleSlot, make([]byte, 8), slot[:]))

	targets, err := d.NextTargets()
	require.NoError(t, err)
	assert.Equal(t, []Target{sampleTarget, second}, targets)
}

func TestNextTargets_Resynchronisation(t *testing.T) {
	frame := testutil.DataFrame(testutil.SampleSlot)

	tests := []struct {
		name    string
		stream  []byte
		skipped int
	}{
		{
			name:   "clean stream",
			stream: frame,
		},
		{
			name:    "leading garbage",
			stream:  testutil.Concat([]byte{0x00, 0x00, 0xFF}, frame, []byte{0xFF, 0xAA}),
			skipped: 3,
		},
		{
			name:    "partial header before real header",
			stream:  testutil.Concat([]byte{0xAA, 0xFF}, frame),
			skipped: 2,
		},
		{
			name:    "repeated header start bytes",
			stream:  testutil.Concat([]byte{0xAA, 0xAA, 0xAA}, frame),
			skipped: 3,
		},
		{
			name:    "header cut short by unrelated byte",
			stream:  testutil.Concat([]byte{0xAA, 0xFF, 0x03, 0x42}, frame),
			skipped: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			monitoring.SetLogger(log.New(&logs, "", 0).Printf)
			monitoring.SetVerbose(true)
			t.Cleanup(func() {
				monitoring.SetLogger(log.Printf)
				monitoring.SetVerbose(false)
			})

			targets, err := readerDriver(tt.stream).NextTargets()
			require.NoError(t, err)
			assert.Equal(t, []Target{sampleTarget}, targets)

			if tt.skipped == 0 {
				assert.Empty(t, logs.String())
			} else {
				assert.Contains(t, logs.String(), fmt.Sprintf("skipped %d bytes", tt.skipped))
			}
		})
	}
}

func TestSyncHeader_SkipCount(t *testing.T) {
	tests := []struct {
		name    string
		prefix  []byte
		skipped int
	}{
		{"none", nil, 0},
		{"one stray byte", []byte{0x01}, 1},
		{"false start of two", []byte{0xAA, 0xFF}, 2},
		{"false start of three", []byte{0xAA, 0xFF, 0x03}, 3},
		{"single AA", []byte{0xAA}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := testutil.Concat(tt.prefix, dataHeader[:])
			skipped, err := syncHeader(bufio.NewReader(bytes.NewReader(stream)))
			require.NoError(t, err)
			assert.Equal(t, tt.skipped, skipped)
		})
	}
}

func TestNextTargets_TrailingBytesStayInStream(t *testing.T) {
	second := Target{X: 100, Y: 200, Speed: 0, Resolution: 320}
	slot := second.Encode()
	d := readerDriver(testutil.Concat(
		testutil.DataFrame(testutil.SampleSlot),
		[]byte{0xFF, 0xAA},
		testutil.DataFrame(slot[:]),
	))

	first, err := d.NextTargets()
	require.NoError(t, err)
	assert.Equal(t, []Target{sampleTarget}, first)

	next, err := d.NextTargets()
	require.NoError(t, err)
	assert.Equal(t, []Target{second}, next)
}

func TestNextTargets_BadTrailer(t *testing.T) {
	// One payload byte too many: the trailer read lands on the last payload
	// byte and the first trailer byte.
	stream := testutil.Concat(
		[]byte{0xAA, 0xFF, 0x03, 0x00},
		testutil.SampleSlot,
		make([]byte, 17),
		[]byte{0x55, 0xCC},
	)

	_, err := readerDriver(stream).NextTargets()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedFrameSize)
	assert.NotErrorIs(t, err, ErrSerial)
}

func TestNextTargets_ResumesAfterFramingError(t *testing.T) {
	bad := testutil.DataFrame(testutil.SampleSlot)
	bad[len(bad)-2], bad[len(bad)-1] = 0x12, 0x34

	d := readerDriver(testutil.Concat(bad, testutil.DataFrame(testutil.SampleSlot)))

	_, err := d.NextTargets()
	require.ErrorIs(t, err, ErrUnexpectedFrameSize)
	assert.Equal(t, ModeNormal, d.Mode())

	targets, err := d.NextTargets()
	require.NoError(t, err)
	assert.Equal(t, []Target{sampleTarget}, targets)
}

func TestNextTargets_TransportFailures(t *testing.T) {
	full := testutil.DataFrame(testutil.SampleSlot)

	tests := []struct {
		name   string
		stream []byte
		cause  error
	}{
		{"empty stream", nil, io.EOF},
		{"ends inside header", full[:2], io.EOF},
		{"ends inside payload", full[:10], io.ErrUnexpectedEOF},
		{"ends before trailer", full[:28], io.EOF},
		{"ends inside trailer", full[:29], io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monitoring.SetLogger(nil)
			t.Cleanup(func() { monitoring.SetLogger(log.Printf) })

			_, err := readerDriver(tt.stream).NextTargets()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSerial)
			assert.ErrorIs(t, err, tt.cause)
		})
	}
}

func TestNextTargets_ReadError(t *testing.T) {
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })

	port := testutil.NewPort(nil)
	port.ReadError = io.ErrClosedPipe

	_, err := New(port).NextTargets()
	assert.ErrorIs(t, err, ErrSerial)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestNextTargets_Desynchronized(t *testing.T) {
	d := readerDriver(testutil.DataFrame(testutil.SampleSlot))
	d.mode = ModeDesynchronized

	_, err := d.NextTargets()
	assert.ErrorIs(t, err, ErrDesynchronized)

	d.Reset()
	targets, err := d.NextTargets()
	require.NoError(t, err)
	assert.Len(t, targets, 1)
}

func TestNextTargets_ConfigurationMode(t *testing.T) {
	d := readerDriver(testutil.DataFrame(testutil.SampleSlot))
	d.mode = ModeConfiguration

	_, err := d.NextTargets()
	assert.ErrorIs(t, err, ErrConfigurationMode)

	// nothing was consumed
	d.mode = ModeNormal
	targets, err := d.NextTargets()
	require.NoError(t, err)
	assert.Len(t, targets, 1)
}
