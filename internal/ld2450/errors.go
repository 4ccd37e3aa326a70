package ld2450

import "errors"

var (
	// ErrSerial wraps any failure reported by the underlying transport,
	// including a stream that ends in the middle of a frame.
	ErrSerial = errors.New("ld2450: serial transport error")

	// ErrUnexpectedFrameSize is returned when a frame header, length field
	// or trailer does not match. The frame is discarded and the next read
	// resumes synchronisation from wherever the failing read stopped.
	ErrUnexpectedFrameSize = errors.New("ld2450: unexpected frame size")

	// ErrDesynchronized means the transport failed while the radar was
	// switching modes, so it may be in either normal or configuration mode.
	// Only a power cycle of the radar (followed by Driver.Reset) recovers.
	ErrDesynchronized = errors.New("ld2450: radar mode unknown after serial error during mode switch")

	// ErrConfigurationMode is returned by a frame read or a new configuration
	// transaction started while another transaction holds the radar in
	// configuration mode.
	ErrConfigurationMode = errors.New("ld2450: radar is in configuration mode")

	// ErrReadOnly is returned by configuration calls on a driver that was
	// built without a writable transport.
	ErrReadOnly = errors.New("ld2450: transport is read-only")

	// ErrInvalidResponse is returned when an acknowledgement is well framed
	// but carries a value the driver does not know.
	ErrInvalidResponse = errors.New("ld2450: invalid response payload")
)
