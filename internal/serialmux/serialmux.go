// Serialmux owns the serial port of one LD2450 radar and fans the decoded
// target frames out to any number of subscribers, while letting callers
// reconfigure the radar between frames.
package serialmux

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/ld2450/internal/db"
	"github.com/banshee-data/ld2450/internal/ld2450"
	"github.com/banshee-data/ld2450/internal/monitoring"
)

// RecentSize is the number of events kept for Recent.
const RecentSize = 256

// subscriberBuffer is the channel depth per subscriber. Events for a full
// channel are dropped.
const subscriberBuffer = 16

// SerialMux is a generic serial port multiplexer that allows multiple clients to
// subscribe to target events from a single radar.
type SerialMux[T SerialPorter] struct {
	commandLog

	port T

	// portMu serialises every use of driver; the radar can either stream or
	// take commands, never both.
	portMu sync.Mutex
	driver *ld2450.Driver

	subscribers  map[string]chan TargetEvent
	subscriberMu sync.Mutex
	closing      bool
	closingMu    sync.Mutex

	recentMu sync.Mutex
	recent   []TargetEvent
	next     int

	mode          atomic.Int32
	frames        atomic.Uint64
	framingErrors atomic.Uint64
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving target events. The
	// channel ID is used to identify the unique channel when unsubscribing.
	Subscribe() (string, chan TargetEvent)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// Monitor reads frames from the radar and sends them to subscribers.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error
	// Initialize writes the radar configuration.
	Initialize(ld2450.Config) error

	SetBluetoothEnabled(bool) error
	// ResetMode clears a desynchronized driver once the radar has been
	// power cycled.
	ResetMode()
	FirmwareVersion() (ld2450.FirmwareVersion, error)
	TrackingMode() (ld2450.TrackingMode, error)
	ZoneFiltering() (ld2450.FilteringMode, error)
	Status() Status
	Recent() []TargetEvent

	// SetCommandLog records commands sent from the admin routes to the
	// given database.
	SetCommandLog(*db.DB)

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// Status is a snapshot of the mux counters and the driver's mode.
type Status struct {
	Mode          string `json:"mode"`
	Frames        uint64 `json:"frames"`
	FramingErrors uint64 `json:"framing_errors"`
	Subscribers   int    `json:"subscribers"`
}

// NewSerialMux creates a SerialMux around an open port. Nothing is sent to
// the radar until Initialize or one of the command methods is called.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		driver:      ld2450.New(port),
		subscribers: make(map[string]chan TargetEvent),
	}
}

// Subscribe registers a new event channel.
func (s *SerialMux[T]) Subscribe() (string, chan TargetEvent) {
	id := randomID()
	ch := make(chan TargetEvent, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// withDriver runs fn with exclusive use of the port and records the mode
// the driver is left in.
func (s *SerialMux[T]) withDriver(fn func(*ld2450.Driver) error) error {
	s.portMu.Lock()
	defer s.portMu.Unlock()
	err := fn(s.driver)
	s.mode.Store(int32(s.driver.Mode()))
	return err
}

// Initialize applies cfg to the radar in one configuration transaction.
func (s *SerialMux[T]) Initialize(cfg ld2450.Config) error {
	err := s.withDriver(func(d *ld2450.Driver) error { return d.Apply(cfg) })
	if err != nil {
		return fmt.Errorf("failed to apply radar configuration: %w", err)
	}
	return nil
}

// SetBluetoothEnabled switches the radar's bluetooth module.
func (s *SerialMux[T]) SetBluetoothEnabled(enabled bool) error {
	return s.withDriver(func(d *ld2450.Driver) error { return d.SetBluetoothEnabled(enabled) })
}

// FirmwareVersion reads the radar firmware version.
func (s *SerialMux[T]) FirmwareVersion() (ld2450.FirmwareVersion, error) {
	var v ld2450.FirmwareVersion
	err := s.withDriver(func(d *ld2450.Driver) error {
		var err error
		v, err = d.FirmwareVersion()
		return err
	})
	return v, err
}

// TrackingMode reads the tracking mode from the radar.
func (s *SerialMux[T]) TrackingMode() (ld2450.TrackingMode, error) {
	var m ld2450.TrackingMode
	err := s.withDriver(func(d *ld2450.Driver) error {
		var err error
		m, err = d.TrackingMode()
		return err
	})
	return m, err
}

// ZoneFiltering reads the zone filter from the radar.
func (s *SerialMux[T]) ZoneFiltering() (ld2450.FilteringMode, error) {
	var f ld2450.FilteringMode
	err := s.withDriver(func(d *ld2450.Driver) error {
		var err error
		f, err = d.ZoneFiltering()
		return err
	})
	return f, err
}

// ResetMode clears a desynchronized state. Only call it after the radar has
// been power cycled.
func (s *SerialMux[T]) ResetMode() {
	_ = s.withDriver(func(d *ld2450.Driver) error {
		d.Reset()
		return nil
	})
}

// Status returns the current counters. It does not wait for the port.
func (s *SerialMux[T]) Status() Status {
	s.subscriberMu.Lock()
	n := len(s.subscribers)
	s.subscriberMu.Unlock()

	return Status{
		Mode:          ld2450.Mode(s.mode.Load()).String(),
		Frames:        s.frames.Load(),
		FramingErrors: s.framingErrors.Load(),
		Subscribers:   n,
	}
}

// Recent returns up to RecentSize most recent events, oldest first.
func (s *SerialMux[T]) Recent() []TargetEvent {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()
	out := make([]TargetEvent, 0, len(s.recent))
	if len(s.recent) < RecentSize {
		return append(out, s.recent...)
	}
	out = append(out, s.recent[s.next:]...)
	return append(out, s.recent[:s.next]...)
}

func (s *SerialMux[T]) remember(ev TargetEvent) {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()
	if len(s.recent) < RecentSize {
		s.recent = append(s.recent, ev)
		return
	}
	s.recent[s.next] = ev
	s.next = (s.next + 1) % RecentSize
}

func (s *SerialMux[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

// Monitor reads frames from the radar until ctx is done, the port fails or
// the driver loses track of the radar mode. Frames with a bad trailer are
// counted and skipped.
//
// A frame read cannot be interrupted, so cancelling ctx closes the mux. The
// reader has always stopped, and released the port, by the time Monitor
// returns.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	events := make(chan TargetEvent)
	readErr := make(chan error, 1)
	readerDone := make(chan struct{})

	// the blocking frame read runs in its own goroutine so the loop below
	// can still notice cancellation
	go func() {
		defer close(readerDone)
		defer close(events)
		for {
			var targets []ld2450.Target
			err := s.withDriver(func(d *ld2450.Driver) error {
				var err error
				targets, err = d.NextTargets()
				return err
			})

			if errors.Is(err, ld2450.ErrUnexpectedFrameSize) {
				s.framingErrors.Add(1)
				monitoring.Debugf("serialmux: dropped frame: %v", err)
				continue
			}
			if err != nil {
				readErr <- err
				return
			}

			select {
			case events <- NewTargetEvent(targets):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if err := s.Close(); err != nil {
				monitoring.Logf("serialmux: failed to close port: %v", err)
			}
			<-readerDone
			return ctx.Err()

		case err := <-readErr:
			<-readerDone
			if s.isClosing() {
				return nil
			}
			return err

		case ev, ok := <-events:
			if !ok {
				<-readerDone
				select {
				case err := <-readErr:
					if s.isClosing() {
						return nil
					}
					return err
				default:
					return nil
				}
			}
			if s.isClosing() {
				for range events {
				}
				<-readerDone
				return nil
			}
			s.frames.Add(1)
			s.remember(ev)

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- ev:
				default:
					// skip slow subscribers rather than stall the radar
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

// Close closes all subscriber channels and the port. A Monitor blocked on a
// read returns once the port is closed. Closing twice is a no-op.
func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	if s.closing {
		s.closingMu.Unlock()
		return nil
	}
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()
	return s.port.Close()
}
