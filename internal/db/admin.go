package db

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// defaultWindow is how far back the speed routes look without ?hours=.
const defaultWindow = 24 * time.Hour

func sinceFromRequest(r *http.Request) (time.Time, error) {
	window := defaultWindow
	if v := r.URL.Query().Get("hours"); v != "" {
		h, err := strconv.ParseFloat(v, 64)
		if err != nil || h <= 0 {
			return time.Time{}, fmt.Errorf("invalid hours %q", v)
		}
		window = time.Duration(h * float64(time.Hour))
	}
	return time.Now().Add(-window), nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://ld2450.db", db.DB, &tailsql.DBOptions{
		Label: "LD2450 DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("speed-summary", "approach speed statistics (?hours=N)", func(w http.ResponseWriter, r *http.Request) {
		since, err := sinceFromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		summary, err := db.SpeedSummary(since)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to summarise speeds: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summary)
	})

	debug.HandleFunc("speed-histogram", "approach speed histogram (?hours=N)", func(w http.ResponseWriter, r *http.Request) {
		since, err := sinceFromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		speeds, err := db.ApproachSpeeds(since)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to load speeds: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		title := fmt.Sprintf("Approach speeds since %s", since.Format(time.RFC3339))
		if err := WriteSpeedHistogram(w, speeds, title); err != nil {
			log.Printf("speed histogram: %v", err)
		}
	})

	debug.HandleSilentFunc("commands", func(w http.ResponseWriter, r *http.Request) {
		cmds, err := db.Commands(100)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to load commands: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cmds)
	})

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("ld2450-backup-%d.db", time.Now().Unix()))
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
		w.Header().Set("Content-Type", "application/gzip")

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			log.Printf("Failed to write backup file: %v", err)
		}
	}))
}
