package serialmux

import (
	"go.bug.st/serial"
)

// RealSerialPortFactory opens UARTs with go.bug.st/serial.
type RealSerialPortFactory struct{}

// NewRealSerialPortFactory returns the factory for hardware ports.
func NewRealSerialPortFactory() *RealSerialPortFactory {
	return &RealSerialPortFactory{}
}

// Open opens the port at path.
func (RealSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	return serial.Open(path, mode)
}

// NewRealSerialMux creates a SerialMux instance backed by a real serial port at the
// given path using the provided serial options.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewSerialMux[serial.Port](port), nil
}

// OpenSerialMux opens path with factory and wraps the port in a SerialMux.
func OpenSerialMux(factory SerialPortFactory, path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	port, err := factory.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return NewSerialMux(port), nil
}
