// Package testutil provides shared test utilities and fixtures.
//
// The frame builders work on raw bytes so that the radar packages can use
// them from their own tests without import cycles.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// SampleSlot is a target slot captured from a real radar:
// x=-782mm, y=1713mm, speed=-16cm/s, resolution=320mm.
var SampleSlot = []byte{0x0E, 0x03, 0xB1, 0x86, 0x10, 0x00, 0x40, 0x01}

var (
	dataHeader     = []byte{0xAA, 0xFF, 0x03, 0x00}
	dataTrailer    = []byte{0x55, 0xCC}
	commandHeader  = []byte{0xFD, 0xFC, 0xFB, 0xFA}
	commandTrailer = []byte{0x04, 0x03, 0x02, 0x01}
)

// DataFrame builds a target data frame. Up to three 8-byte slots may be
// given; missing slots are zero (untracked).
func DataFrame(slots ...[]byte) []byte {
	payload := make([]byte, 24)
	for i, s := range slots {
		copy(payload[i*8:(i+1)*8], s)
	}
	frame := append([]byte{}, dataHeader...)
	frame = append(frame, payload...)
	return append(frame, dataTrailer...)
}

// AckFrame builds an acknowledgement frame around payload.
func AckFrame(payload []byte) []byte {
	frame := append([]byte{}, commandHeader...)
	frame = append(frame, byte(len(payload)), byte(len(payload)>>8))
	frame = append(frame, payload...)
	return append(frame, commandTrailer...)
}

// Concat joins byte slices, for building streams out of frames and noise.
func Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
