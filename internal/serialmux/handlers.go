package serialmux

import (
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/ld2450/internal/db"
	"github.com/banshee-data/ld2450/internal/monitoring"
)

// HandleEvent stores ev in d. Empty frames are not stored unless keepEmpty
// is set; the radar sends ten a second whether or not anyone is there.
func HandleEvent(d *db.DB, ev TargetEvent, keepEmpty bool) error {
	class := Classify(ev)
	if class == EventTypeEmpty && !keepEmpty {
		return nil
	}
	monitoring.Debugf("frame %s: %s %+v", ev.ID, class, ev.Targets)

	err := d.RecordFrame(db.Frame{
		ID:      ev.ID,
		Time:    ev.Time,
		Class:   class,
		Targets: ev.Targets,
	})
	if err != nil {
		return fmt.Errorf("failed to record frame %s: %w", ev.ID, err)
	}
	return nil
}

// HandleCommand logs the outcome of a radar command to d and returns
// cmdErr unchanged.
func HandleCommand(d *db.DB, command string, cmdErr error) error {
	if cmdErr != nil {
		monitoring.Logf("radar command %s failed: %v", command, cmdErr)
	}
	if err := d.RecordCommand(command, cmdErr); err != nil {
		monitoring.Logf("failed to record command %s: %v", command, err)
	}
	return cmdErr
}

// commandLog records the radar commands issued from the debug routes.
// Nothing is recorded until SetCommandLog is called.
type commandLog struct {
	store atomic.Pointer[db.DB]
}

// SetCommandLog records every debug route command to d.
func (c *commandLog) SetCommandLog(d *db.DB) { c.store.Store(d) }

func (c *commandLog) record(command string, err error) error {
	d := c.store.Load()
	if d == nil {
		return err
	}
	return HandleCommand(d, command, err)
}
