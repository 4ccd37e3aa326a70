// Package db stores radar frames and commands in SQLite.
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/ld2450/internal/ld2450"
)

type DB struct {
	*sql.DB
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
}

// NewDB opens the database at path and migrates it to the latest schema.
// Use ":memory:" for a throwaway database.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// each connection would otherwise get its own empty database
		sqlDB.SetMaxOpenConns(1)
	}

	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Frame is one stored data frame.
type Frame struct {
	ID      string          `json:"id"`
	Time    time.Time       `json:"time"`
	Class   string          `json:"class"`
	Targets []ld2450.Target `json:"targets"`
}

// RecordFrame stores a frame and its targets in one transaction.
func (db *DB) RecordFrame(f Frame) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO frames (frame_id, recorded_at, class, target_count) VALUES (?, ?, ?, ?)`,
		f.ID, f.Time.UnixNano(), f.Class, len(f.Targets),
	); err != nil {
		return fmt.Errorf("failed to insert frame: %w", err)
	}

	for i, t := range f.Targets {
		if _, err := tx.Exec(
			`INSERT INTO targets (frame_id, idx, x_mm, y_mm, speed_cms, resolution_mm) VALUES (?, ?, ?, ?, ?, ?)`,
			f.ID, i, t.X, t.Y, t.Speed, t.Resolution,
		); err != nil {
			return fmt.Errorf("failed to insert target %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// RecentFrames returns up to limit frames, newest first. Frames and their
// targets are read in one transaction, and targets are looked up by the IDs
// of the frames returned.
func (db *DB) RecentFrames(limit int) ([]Frame, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT frame_id, recorded_at, class FROM frames ORDER BY recorded_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []Frame
	index := make(map[string]int)
	for rows.Next() {
		var f Frame
		var ns int64
		if err := rows.Scan(&f.ID, &ns, &f.Class); err != nil {
			return nil, err
		}
		f.Time = time.Unix(0, ns).UTC()
		index[f.ID] = len(frames)
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if len(frames) == 0 {
		return frames, nil
	}

	ids := make([]any, len(frames))
	for i, f := range frames {
		ids[i] = f.ID
	}
	trows, err := tx.Query(
		`SELECT frame_id, x_mm, y_mm, speed_cms, resolution_mm
		 FROM targets
		 WHERE frame_id IN (?`+strings.Repeat(",?", len(ids)-1)+`)
		 ORDER BY frame_id, idx`, ids...)
	if err != nil {
		return nil, err
	}
	defer trows.Close()

	for trows.Next() {
		var id string
		var t ld2450.Target
		if err := trows.Scan(&id, &t.X, &t.Y, &t.Speed, &t.Resolution); err != nil {
			return nil, err
		}
		if i, ok := index[id]; ok {
			frames[i].Targets = append(frames[i].Targets, t)
		}
	}
	return frames, trows.Err()
}

// CommandRecord is one logged radar command.
type CommandRecord struct {
	ID      int64     `json:"id"`
	Command string    `json:"command"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// RecordCommand logs a command sent to the radar and its outcome.
func (db *DB) RecordCommand(command string, cmdErr error) error {
	var msg string
	if cmdErr != nil {
		msg = cmdErr.Error()
	}
	_, err := db.Exec(
		`INSERT INTO commands (command, error, recorded_at) VALUES (?, ?, ?)`,
		command, msg, time.Now().UnixNano(),
	)
	return err
}

// Commands returns up to limit logged commands, newest first.
func (db *DB) Commands(limit int) ([]CommandRecord, error) {
	rows, err := db.Query(
		`SELECT command_id, command, error, recorded_at FROM commands ORDER BY command_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommandRecord
	for rows.Next() {
		var c CommandRecord
		var ns int64
		if err := rows.Scan(&c.ID, &c.Command, &c.Error, &ns); err != nil {
			return nil, err
		}
		c.Time = time.Unix(0, ns).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// Prune deletes frames recorded before cutoff, with their targets, and
// returns how many frames went.
func (db *DB) Prune(cutoff time.Time) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	ns := cutoff.UnixNano()
	if _, err := tx.Exec(
		`DELETE FROM targets WHERE frame_id IN (SELECT frame_id FROM frames WHERE recorded_at < ?)`, ns,
	); err != nil {
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM frames WHERE recorded_at < ?`, ns)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
