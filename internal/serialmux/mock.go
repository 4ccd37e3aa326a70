package serialmux

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/ld2450/internal/emulator"
	"github.com/banshee-data/ld2450/internal/ld2450"
)

// DemoTargets is the scene used by NewMockSerialMux: one person walking
// towards the radar and one walking away.
var DemoTargets = []ld2450.Target{
	{X: -600, Y: 4500, Speed: -40, Resolution: 360},
	{X: 900, Y: 1200, Speed: 25, Resolution: 320},
}

// NewMockSerialMux creates a SerialMux backed by an emulated radar that
// emits a frame every interval until ctx is done. The device is returned so
// callers can change the scene.
func NewMockSerialMux(ctx context.Context, interval time.Duration) (*SerialMux[*emulator.Device], *emulator.Device) {
	dev := emulator.New()
	if err := dev.SetTargets(DemoTargets...); err != nil {
		panic("invalid demo scene: " + err.Error())
	}
	log.Printf("Using emulated LD2450 (%d targets, frame every %s)", len(DemoTargets), interval)

	go func() {
		if err := dev.Run(ctx, interval); err != nil && ctx.Err() == nil {
			log.Printf("radar emulator stopped: %v", err)
		}
	}()

	return NewSerialMux(dev), dev
}

// MockSerialPortFactory implements SerialPortFactory for testing.
type MockSerialPortFactory struct {
	mu sync.Mutex

	// Port is the port to return from Open
	Port SerialPorter

	// Error is returned by Open if set
	Error error

	// OpenCalls records all Open calls
	OpenCalls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path    string
	Options PortOptions
}

// NewMockSerialPortFactory creates a new MockSerialPortFactory.
func NewMockSerialPortFactory(port SerialPorter) *MockSerialPortFactory {
	return &MockSerialPortFactory{Port: port}
}

// Open returns the configured port or error.
func (f *MockSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{
		Path:    path,
		Options: opts,
	})

	if f.Error != nil {
		return nil, f.Error
	}

	return f.Port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockSerialPortFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}

// Reset clears all recorded calls.
func (f *MockSerialPortFactory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = nil
	f.Error = nil
}

