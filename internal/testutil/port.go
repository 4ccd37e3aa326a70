package testutil

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// ErrPortClosed is returned by Port after Close.
var ErrPortClosed = errors.New("serial port closed")

// Port is a scripted serial port. Reads drain ReadBuffer; writes are
// recorded one entry per Write call so tests can check framing, and
// individual writes can be made to fail.
type Port struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// Writes records every Write call in order
	Writes [][]byte

	// WriteErrors maps a zero-based Write call index to the error it returns
	WriteErrors map[int]error

	// ReadError is returned by the next Read call if set
	ReadError error

	// OnWrite, if set, is called with each successful write. It may call
	// AddReadData to queue the device's answer.
	OnWrite func(p []byte)

	// BlockReads makes Read wait for data instead of returning io.EOF
	BlockReads bool

	// Closed indicates whether Close was called
	Closed bool

	readCond *sync.Cond
}

// NewPort returns a port that will read data.
func NewPort(data []byte) *Port {
	p := &Port{
		ReadBuffer:  bytes.NewBuffer(append([]byte(nil), data...)),
		WriteErrors: make(map[int]error),
	}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// Read implements io.Reader.
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}
	for p.BlockReads && !p.Closed && p.ReadBuffer.Len() == 0 {
		p.readCond.Wait()
	}
	if p.Closed {
		return 0, ErrPortClosed
	}
	if p.ReadBuffer.Len() == 0 {
		return 0, io.EOF
	}
	return p.ReadBuffer.Read(b)
}

// Write implements io.Writer.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	idx := len(p.Writes)
	p.Writes = append(p.Writes, append([]byte(nil), b...))
	err := p.WriteErrors[idx]
	closed := p.Closed
	hook := p.OnWrite
	p.mu.Unlock()

	if closed {
		return 0, ErrPortClosed
	}
	if err != nil {
		return 0, err
	}
	if hook != nil {
		hook(b)
	}
	return len(b), nil
}

// Close implements io.Closer and wakes blocked readers.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	p.readCond.Broadcast()
	return nil
}

// AddReadData queues data for subsequent reads.
func (p *Port) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadBuffer.Write(data)
	p.readCond.Broadcast()
}

// FailWrite makes the Write call with the given zero-based index fail.
func (p *Port) FailWrite(idx int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.WriteErrors[idx] = err
}

// WrittenFrames returns a copy of every write so far.
func (p *Port) WrittenFrames() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.Writes))
	for i, w := range p.Writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}
