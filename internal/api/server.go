// Package api serves the JSON API over stored frames and the live radar.
package api

import (
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/ld2450/internal/db"
	"github.com/banshee-data/ld2450/internal/httputil"
	"github.com/banshee-data/ld2450/internal/ld2450"
	"github.com/banshee-data/ld2450/internal/serialmux"
	"github.com/banshee-data/ld2450/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// convertSummary applies unit conversion to every speed in a summary.
func convertSummary(s db.SpeedSummary, to string) db.SpeedSummary {
	s.Mean = units.ConvertSpeed(s.Mean, to)
	s.StdDev = units.ConvertSpeed(s.StdDev, to)
	s.P85 = units.ConvertSpeed(s.P85, to)
	s.Max = units.ConvertSpeed(s.Max, to)
	return s
}

type Server struct {
	m     serialmux.SerialMuxInterface
	db    *db.DB
	units string
}

func NewServer(m serialmux.SerialMuxInterface, db *db.DB, speedUnits string) *Server {
	return &Server{
		m:     m,
		db:    db,
		units: speedUnits,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/frames", s.listFrames)
	mux.HandleFunc("/api/speed_summary", s.showSpeedSummary)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/radar", s.showRadar)
	mux.HandleFunc("/api/bluetooth", s.setBluetooth)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

func (s *Server) listFrames(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit, err := httputil.QueryInt(r, "limit", 100, 1, 10000)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	frames, err := s.db.RecentFrames(limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve frames: %v", err))
		return
	}
	if frames == nil {
		frames = []db.Frame{}
	}
	httputil.WriteJSON(w, http.StatusOK, frames)
}

func (s *Server) showSpeedSummary(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}

	hours, err := httputil.QueryInt(r, "hours", 24, 1, math.MaxInt32)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.db.SpeedSummary(time.Now().Add(-time.Duration(hours) * time.Hour))
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve speed summary: %v", err))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, struct {
		db.SpeedSummary
		Units string `json:"units"`
	}{convertSummary(summary, s.units), s.units})
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.m.Status())
}

// RadarInfo is what /api/radar reads back from the radar.
type RadarInfo struct {
	Firmware  string                  `json:"firmware"`
	Tracking  string                  `json:"tracking"`
	Filtering string                  `json:"filtering"`
	Regions   []ld2450.FilteredRegion `json:"regions,omitempty"`
}

// showRadar queries the radar itself, so each call costs three
// configuration transactions and pauses the frame stream.
func (s *Server) showRadar(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}

	fw, err := s.m.FirmwareVersion()
	if err == nil {
		var tracking ld2450.TrackingMode
		tracking, err = s.m.TrackingMode()
		if err == nil {
			var filtering ld2450.FilteringMode
			filtering, err = s.m.ZoneFiltering()
			if err == nil {
				httputil.WriteJSON(w, http.StatusOK, RadarInfo{
					Firmware:  fw.String(),
					Tracking:  tracking.String(),
					Filtering: filtering.Kind.String(),
					Regions:   filtering.Regions,
				})
				return
			}
		}
	}
	s.record("read radar settings", err)
	httputil.BadGateway(w, "query radar", err)
}

func (s *Server) setBluetooth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var enabled bool
	switch strings.ToLower(strings.TrimSpace(r.FormValue("enabled"))) {
	case "on", "true", "1":
		enabled = true
	case "off", "false", "0":
		enabled = false
	default:
		http.Error(w, "enabled must be on or off", http.StatusBadRequest)
		return
	}

	command := fmt.Sprintf("set bluetooth %v", enabled)
	if err := s.record(command, s.m.SetBluetoothEnabled(enabled)); err != nil {
		http.Error(w, "Failed to send command", http.StatusBadGateway)
		return
	}
	io.WriteString(w, "Command sent successfully")
}

// record logs a radar command to the database and returns err.
func (s *Server) record(command string, err error) error {
	if s.db == nil {
		return err
	}
	return serialmux.HandleCommand(s.db, command, err)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"units": s.units})
}
