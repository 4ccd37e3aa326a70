package ld2450

import (
	"bytes"
	"fmt"
	"io"
)

var (
	commandHeader  = [4]byte{0xFD, 0xFC, 0xFB, 0xFA}
	commandTrailer = [4]byte{0x04, 0x03, 0x02, 0x01}
)

// Command is a 16-bit command word of the configuration protocol.
type Command uint16

const (
	CmdEnterConfig      Command = 0x0001
	CmdSingleTarget     Command = 0x0080
	CmdMultiTarget      Command = 0x0090
	CmdGetTrackingMode  Command = 0x0091
	CmdGetFirmware      Command = 0x00A0
	CmdSetBaudRate      Command = 0x00A1
	CmdFactoryRestore   Command = 0x00A2
	CmdRestart          Command = 0x00A3
	CmdSetBluetooth     Command = 0x00A4
	CmdGetMAC           Command = 0x00A5
	CmdGetZoneFiltering Command = 0x00C1
	CmdSetZoneFiltering Command = 0x00C2
	CmdExitConfig       Command = 0x00FE
)

// enterConfigValue is the data word sent with CmdEnterConfig.
const enterConfigValue = 0x0001

var commandNames = map[Command]string{
	CmdEnterConfig:      "enter-config",
	CmdSingleTarget:     "set-single-target",
	CmdMultiTarget:      "set-multi-target",
	CmdGetTrackingMode:  "get-tracking-mode",
	CmdGetFirmware:      "get-firmware",
	CmdSetBaudRate:      "set-baud-rate",
	CmdFactoryRestore:   "factory-restore",
	CmdRestart:          "restart",
	CmdSetBluetooth:     "set-bluetooth",
	CmdGetMAC:           "get-mac",
	CmdGetZoneFiltering: "get-zone-filter",
	CmdSetZoneFiltering: "set-zone-filter",
	CmdExitConfig:       "exit-config",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%#04x)", uint16(c))
}

// frame wraps body (command word plus data) in the command header, length
// and trailer.
func frame(body []byte) []byte {
	b := make([]byte, 0, len(commandHeader)+2+len(body)+len(commandTrailer))
	b = append(b, commandHeader[:]...)
	b = append(b, 0, 0)
	putU16(b[len(commandHeader):], uint16(len(body)))
	b = append(b, body...)
	return append(b, commandTrailer[:]...)
}

// EncodeCommand encodes a command without data (length 2).
func EncodeCommand(cmd Command) []byte {
	var body [2]byte
	putU16(body[:], uint16(cmd))
	return frame(body[:])
}

// EncodeCommandData encodes a command with one data word (length 4).
func EncodeCommandData(cmd Command, data uint16) []byte {
	var body [4]byte
	putU16(body[0:2], uint16(cmd))
	putU16(body[2:4], data)
	return frame(body[:])
}

// EncodeCommandPayload encodes a command followed by a raw payload, as used
// by the zone filter configuration (length 2 + len(payload)).
func EncodeCommandPayload(cmd Command, payload []byte) []byte {
	body := make([]byte, 2, 2+len(payload))
	putU16(body, uint16(cmd))
	return frame(append(body, payload...))
}

// writeFrame writes one whole frame.
func writeFrame(w io.Writer, frame []byte) error {
	n, err := w.Write(frame)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerial, err)
	}
	if n != len(frame) {
		return fmt.Errorf("%w: short write (%d of %d bytes)", ErrSerial, n, len(frame))
	}
	return nil
}

// ReadAck reads one acknowledgement frame whose payload must be exactly
// len(buf) bytes long, and copies the payload into buf. Header, length and
// trailer mismatches are ErrUnexpectedFrameSize; read failures are ErrSerial.
func ReadAck(r io.Reader, buf []byte) error {
	var word [4]byte
	if _, err := io.ReadFull(r, word[:]); err != nil {
		return fmt.Errorf("%w: reading ack header: %w", ErrSerial, err)
	}
	if word != commandHeader {
		return fmt.Errorf("ack header % X: %w", word, ErrUnexpectedFrameSize)
	}

	if _, err := io.ReadFull(r, word[:2]); err != nil {
		return fmt.Errorf("%w: reading ack length: %w", ErrSerial, err)
	}
	if n := decodeU16(word[:2]); int(n) != len(buf) {
		return fmt.Errorf("ack length %d, want %d: %w", n, len(buf), ErrUnexpectedFrameSize)
	}

	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("%w: reading ack payload: %w", ErrSerial, err)
	}

	if _, err := io.ReadFull(r, word[:]); err != nil {
		return fmt.Errorf("%w: reading ack trailer: %w", ErrSerial, err)
	}
	if !bytes.Equal(word[:], commandTrailer[:]) {
		return fmt.Errorf("ack trailer % X: %w", word, ErrUnexpectedFrameSize)
	}
	return nil
}

// EncodeAck builds an acknowledgement frame carrying payload.
func EncodeAck(payload []byte) []byte {
	return frame(payload)
}
