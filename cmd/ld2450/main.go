// Command ld2450 reads targets from an HLK-LD2450 radar, stores them in
// SQLite, optionally forwards them over MQTT and serves a JSON API plus
// debug pages.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/ld2450/internal/api"
	"github.com/banshee-data/ld2450/internal/config"
	"github.com/banshee-data/ld2450/internal/db"
	"github.com/banshee-data/ld2450/internal/forward"
	"github.com/banshee-data/ld2450/internal/ld2450"
	"github.com/banshee-data/ld2450/internal/monitoring"
	"github.com/banshee-data/ld2450/internal/serialmux"
	speedunits "github.com/banshee-data/ld2450/internal/units"
	"github.com/banshee-data/ld2450/internal/version"
)

var (
	configPath        = flag.String("config", "", "Path to a .yaml, .yml or .json config file")
	port              = flag.String("port", "", "Serial port to use (ignored in dev mode; default "+config.DefaultPort+")")
	baud              = flag.Int("baud", 0, "Serial baud rate (default 256000)")
	listen            = flag.String("listen", "", "Listen address (default "+config.DefaultListen+")")
	dbPath            = flag.String("db", "", "SQLite database path (default "+config.DefaultDBPath+")")
	devMode           = flag.Bool("dev", false, "Run against an emulated radar")
	disableRadar      = flag.Bool("disable-radar", false, "Run without a radar (API and stored data only)")
	mqttURL           = flag.String("mqtt", "", "MQTT broker URL to forward targets to, e.g. mqtt://localhost:1883/ld2450/")
	applyConfig       = flag.Bool("apply-config", false, "Write the radar section of the config to the radar at start-up")
	bluetoothOffAfter = flag.Duration("bluetooth-off-after", 0, "Switch the radar's bluetooth off after this delay (0 to leave it)")
	units             = flag.String("units", "", "Speed units for the API: cms, mps, kph or mph (default cms)")
	verbose           = flag.Bool("verbose", false, "Log frame-level debug output")
	showVersion       = flag.Bool("version", false, "Print the version and exit")
)

// devFrameInterval matches the radar's own output rate.
const devFrameInterval = 100 * time.Millisecond

// resetPollInterval is how often a desynchronized radar is checked for a
// mode reset.
const resetPollInterval = time.Second

// pruneInterval is how often frames older than the retention are deleted.
const pruneInterval = time.Hour

// settings is the configuration file with command line overrides applied.
type settings struct {
	port        string
	portOpts    serialmux.PortOptions
	listen      string
	dbPath      string
	mqttURL     string
	units       string
	radar       ld2450.Config
	apply       bool
	retention   time.Duration
	recordEmpty bool
}

// resolveSettings merges cfg with the flags. A flag wins whenever it is set
// to something other than its zero value.
func resolveSettings(cfg *config.Config) (settings, error) {
	s := settings{
		port:        cfg.GetPort(),
		listen:      cfg.GetListen(),
		dbPath:      cfg.GetDBPath(),
		mqttURL:     cfg.GetMQTTURL(),
		units:       cfg.GetUnits(),
		radar:       cfg.RadarSettings(),
		apply:       cfg.GetApplyOnStart() || *applyConfig,
		retention:   cfg.GetRetention(),
		recordEmpty: cfg.GetRecordEmpty(),
	}
	if cfg.Serial != nil {
		s.portOpts = cfg.Serial.PortOptions
	}

	if *port != "" {
		s.port = *port
	}
	if *baud != 0 {
		s.portOpts.BaudRate = *baud
	}
	if *listen != "" {
		s.listen = *listen
	}
	if *dbPath != "" {
		s.dbPath = *dbPath
	}
	if *mqttURL != "" {
		s.mqttURL = *mqttURL
	}
	if *units != "" {
		if !speedunits.IsValid(*units) {
			return s, fmt.Errorf("units must be one of %s, got %q", speedunits.ValidUnitsString(), *units)
		}
		s.units = *units
	}

	opts, err := s.portOpts.Normalize()
	if err != nil {
		return s, fmt.Errorf("serial: %w", err)
	}
	s.portOpts = opts
	return s, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetVerbose(*verbose)
	log.Printf("starting %s", version.String())

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	s, err := resolveSettings(cfg)
	if err != nil {
		log.Fatalf("invalid settings: %v", err)
	}
	if s.listen == "" {
		log.Fatal("Listen address is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.NewDB(s.dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	var radarSerial serialmux.SerialMuxInterface
	switch {
	case *disableRadar:
		log.Print("radar disabled")
		radarSerial = serialmux.NewDisabledSerialMux()
	case *devMode:
		radarSerial, _ = serialmux.NewMockSerialMux(ctx, devFrameInterval)
	default:
		m, err := serialmux.NewRealSerialMux(s.port, s.portOpts)
		if err != nil {
			log.Fatalf("failed to open radar port %s: %v", s.port, err)
		}
		log.Printf("opened %s at %d baud", s.port, s.portOpts.BaudRate)
		radarSerial = m
	}
	defer radarSerial.Close()
	radarSerial.SetCommandLog(store)

	if !*disableRadar {
		v, old, err := checkFirmware(radarSerial)
		switch {
		case err != nil:
			log.Printf("failed to read radar firmware: %v", err)
		case old:
			log.Printf("radar firmware %s is older than %s", v, oldestTestedFirmware)
		default:
			log.Printf("radar firmware %s", v)
		}
	}

	if s.apply {
		err := serialmux.HandleCommand(store, "apply config", radarSerial.Initialize(s.radar))
		if err != nil {
			log.Fatalf("failed to initialise radar: %v", err)
		}
		log.Printf("radar configured: tracking=%s bluetooth=%v filtering=%s",
			s.radar.Tracking, s.radar.BluetoothEnabled, s.radar.Filtering.Kind)
	}

	var publisher *forward.Publisher
	if s.mqttURL != "" {
		publisher, err = forward.Dial(s.mqttURL)
		if err != nil {
			log.Fatalf("failed to connect to MQTT broker: %v", err)
		}
		defer publisher.Close()
	}

	// Create a wait group for the HTTP server, serial monitor, and event handler routines
	var wg sync.WaitGroup

	// run the monitor routine to manage IO on the serial port. A
	// desynchronized radar waits for /debug/reset-mode; any other failure
	// ends the service.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			err := radarSerial.Monitor(ctx)
			if errors.Is(err, ld2450.ErrDesynchronized) {
				log.Printf("radar desynchronized, power cycle it and POST /debug/reset-mode: %v", err)
				if waitForReset(ctx, radarSerial, resetPollInterval) {
					log.Print("radar mode reset, resuming monitor")
					continue
				}
			} else if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("failed to monitor radar: %v", err)
				stop()
			}
			break
		}
		log.Print("monitor routine terminated")
	}()

	// store every frame
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := radarSerial.Subscribe()
		defer radarSerial.Unsubscribe(id)
		for {
			select {
			case ev, ok := <-c:
				if !ok {
					return
				}
				if err := serialmux.HandleEvent(store, ev, s.recordEmpty); err != nil {
					log.Printf("error handling event: %v", err)
				}
			case <-ctx.Done():
				log.Printf("subscribe routine terminated")
				return
			}
		}
	}()

	if publisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, c := radarSerial.Subscribe()
			defer radarSerial.Unsubscribe(id)
			publisher.SkipEmpty = !s.recordEmpty
			publisher.Forward(ctx, c)
			log.Printf("mqtt routine terminated")
		}()
	}

	if s.retention > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prune(ctx, store, s.retention)
		}()
	}

	if *bluetoothOffAfter > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-time.After(*bluetoothOffAfter):
			case <-ctx.Done():
				return
			}
			err := serialmux.HandleCommand(store, "set bluetooth false", radarSerial.SetBluetoothEnabled(false))
			switch {
			case err == nil:
				log.Print("radar bluetooth switched off")
			case errors.Is(err, ld2450.ErrDesynchronized):
				// the monitor routine waits for the reset
				log.Printf("radar desynchronized, power cycle it: %v", err)
			}
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(radarSerial, store, s.units).ServeMux()
		radarSerial.AttachAdminRoutes(mux)
		store.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    s.listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", s.listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	<-ctx.Done()
	// unblock a Monitor waiting on the port
	if err := radarSerial.Close(); err != nil {
		log.Printf("failed to close radar: %v", err)
	}

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// oldestTestedFirmware is the oldest radar firmware the service has been
// run against.
var oldestTestedFirmware = ld2450.FirmwareVersion{Type: 0, Major: 2, Minor: 22062416}

// checkFirmware reads the radar firmware version and reports whether it is
// older than oldestTestedFirmware.
func checkFirmware(r interface {
	FirmwareVersion() (ld2450.FirmwareVersion, error)
}) (ld2450.FirmwareVersion, bool, error) {
	v, err := r.FirmwareVersion()
	if err != nil {
		return v, false, err
	}
	return v, v.Compare(oldestTestedFirmware) < 0, nil
}

// waitForReset polls r every interval until its driver leaves the
// desynchronized mode. It returns false if ctx is done first.
func waitForReset(ctx context.Context, r interface{ Status() serialmux.Status }, interval time.Duration) bool {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if r.Status().Mode != ld2450.ModeDesynchronized.String() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// prune deletes frames older than retention every pruneInterval until ctx
// is done.
func prune(ctx context.Context, store *db.DB, retention time.Duration) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		n, err := store.Prune(time.Now().Add(-retention))
		if err != nil {
			log.Printf("failed to prune frames: %v", err)
		} else if n > 0 {
			log.Printf("pruned %d frames older than %s", n, retention)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
