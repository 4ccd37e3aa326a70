package serialmux

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/ld2450/internal/httputil"
	"github.com/banshee-data/ld2450/internal/ld2450"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var radarTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/radar.html.tmpl"))

// radarController is the part of SerialMuxInterface the admin routes use.
type radarController interface {
	Subscribe() (string, chan TargetEvent)
	Unsubscribe(string)
	SetBluetoothEnabled(bool) error
	ResetMode()
	Status() Status
	Recent() []TargetEvent
	record(command string, err error) error
}

// AttachAdminRoutes registers the radar debug pages under /debug/.
func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, s, func() (any, error) { return s.FirmwareVersion() })
}

func attachAdminRoutes(mux *http.ServeMux, s radarController, firmware func() (any, error)) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("radar", "LD2450 radar status and live targets", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := radarTemplate.Execute(buf, struct{ Status Status }{s.Status()}); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.Copy(w, buf)
	})

	debug.HandleSilentFunc("radar-status", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, s.Status())
	})

	debug.HandleSilentFunc("firmware", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		v, err := firmware()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to read firmware version: %v", err), http.StatusBadGateway)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, v)
	})

	// POST enabled=on|off
	debug.HandleSilentFunc("bluetooth", func(w http.ResponseWriter, r *http.Request) {
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
		if err := s.record(command, s.SetBluetoothEnabled(enabled)); err != nil {
			http.Error(w, fmt.Sprintf("Failed to set bluetooth: %v", err), http.StatusBadGateway)
			return
		}
		io.WriteString(w, fmt.Sprintf("Bluetooth enabled=%v", enabled))
	})

	// Only use after power cycling a desynchronized radar.
	debug.HandleSilentFunc("reset-mode", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.ResetMode()
		s.record("reset mode", nil)
		io.WriteString(w, fmt.Sprintf("Radar mode %s", s.Status().Mode))
	})

	// Server-Sent Events, one JSON TargetEvent per message.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case ev, ok := <-c:
				if !ok {
					return
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")

		f, err := adminTemplateFS.Open("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		io.Copy(w, f)
	})

	debug.HandleFunc("targets-chart", "scatter of recent target positions", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := renderTargetsChart(&buf, s.Recent()); err != nil {
			http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	})
}

// renderTargetsChart draws every target of events in sensor coordinates,
// coloured by speed.
func renderTargetsChart(w io.Writer, events []TargetEvent) error {
	data := make([]opts.ScatterData, 0, len(events))
	var maxSpeed float32 = 1
	for _, ev := range events {
		for _, t := range ev.Targets {
			data = append(data, opts.ScatterData{Value: []interface{}{t.X, t.Y, t.Speed}})
			if s := float32(abs(int(t.Speed))); s > maxSpeed {
				maxSpeed = s
			}
		}
	}

	subtitle := fmt.Sprintf("frames=%d points=%d", len(events), len(data))
	if len(events) > 0 {
		subtitle += " since " + events[0].Time.Format("15:04:05")
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "LD2450 targets", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Recent targets", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -ld2450.MaxRange, Max: ld2450.MaxRange, Name: "X (mm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: ld2450.MaxRange, Name: "Y (mm)", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        -maxSpeed,
			Max:        maxSpeed,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#d73027", "#fc8d59", "#fee090", "#e0f3f8", "#91bfdb", "#4575b4"}},
		}),
	)
	scatter.AddSeries("targets", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	return scatter.Render(w)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
