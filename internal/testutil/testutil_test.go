package testutil

import (
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertHelpers(t *testing.T) {
	t.Parallel()

	AssertStatusCode(t, http.StatusOK, http.StatusOK)
	AssertNoError(t, nil)
	AssertError(t, errors.New("boom"))
}

func TestDataFrame(t *testing.T) {
	t.Parallel()

	frame := DataFrame(SampleSlot)
	require.Len(t, frame, 30)
	assert.Equal(t, []byte{0xAA, 0xFF, 0x03, 0x00}, frame[:4])
	assert.Equal(t, SampleSlot, frame[4:12])
	assert.Equal(t, make([]byte, 16), frame[12:28])
	assert.Equal(t, []byte{0x55, 0xCC}, frame[28:])
}

func TestAckFrame(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		[]byte{0xFD, 0xFC, 0xFB, 0xFA, 0x02, 0x00, 0x00, 0x00, 0x04, 0x03, 0x02, 0x01},
		AckFrame([]byte{0x00, 0x00}))
}

func TestPort(t *testing.T) {
	t.Parallel()

	p := NewPort([]byte{1, 2, 3})
	p.FailWrite(1, io.ErrClosedPipe)

	n, err := p.Write([]byte{0xA})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = p.Write([]byte{0xB})
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	buf := make([]byte, 8)
	n, err = p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf[:n])

	_, err = p.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, [][]byte{{0xA}, {0xB}}, p.WrittenFrames())
}
