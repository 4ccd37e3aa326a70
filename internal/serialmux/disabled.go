package serialmux

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/banshee-data/ld2450/internal/ld2450"
)

// ErrRadarDisabled is returned by radar commands on a DisabledSerialMux.
var ErrRadarDisabled = errors.New("radar disabled")

// DisabledSerialMux is a no-op SerialMux implementation used when the radar
// hardware is absent (for --disable-radar). It allows the server and admin
// routes to run without a real device. Subscriber channels are tracked so
// they can be closed on Unsubscribe() or Close(), letting readers unblock
// during shutdown.
type DisabledSerialMux struct {
	commandLog

	mu          sync.Mutex
	subscribers map[string]chan TargetEvent
	closing     bool
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{
		subscribers: make(map[string]chan TargetEvent),
	}
}

func (d *DisabledSerialMux) Subscribe() (string, chan TargetEvent) {
	id := randomID()
	ch := make(chan TargetEvent)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		// If already closing, return a closed channel so callers don't block.
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *DisabledSerialMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

func (d *DisabledSerialMux) Initialize(ld2450.Config) error { return nil }

func (d *DisabledSerialMux) SetBluetoothEnabled(bool) error { return ErrRadarDisabled }

func (d *DisabledSerialMux) ResetMode() {}

func (d *DisabledSerialMux) FirmwareVersion() (ld2450.FirmwareVersion, error) {
	return ld2450.FirmwareVersion{}, ErrRadarDisabled
}

func (d *DisabledSerialMux) TrackingMode() (ld2450.TrackingMode, error) {
	return 0, ErrRadarDisabled
}

func (d *DisabledSerialMux) ZoneFiltering() (ld2450.FilteringMode, error) {
	return ld2450.FilteringMode{}, ErrRadarDisabled
}

func (d *DisabledSerialMux) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{Mode: "disabled", Subscribers: len(d.subscribers)}
}

func (d *DisabledSerialMux) Recent() []TargetEvent { return nil }

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, d, func() (any, error) { return d.FirmwareVersion() })
}
