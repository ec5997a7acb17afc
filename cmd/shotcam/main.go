// Command shotcam runs a capture session: it pulls frames from a camera,
// detects laser shots, masks out hits on projected content and serves the
// session over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/lasershot/internal/api"
	"github.com/banshee-data/lasershot/internal/arenamask"
	"github.com/banshee-data/lasershot/internal/camera"
	"github.com/banshee-data/lasershot/internal/camera/device"
	"github.com/banshee-data/lasershot/internal/camera/ipcam"
	"github.com/banshee-data/lasershot/internal/camera/replay"
	"github.com/banshee-data/lasershot/internal/config"
	"github.com/banshee-data/lasershot/internal/db"
	"github.com/banshee-data/lasershot/internal/events"
	"github.com/banshee-data/lasershot/internal/monitoring"
	"github.com/banshee-data/lasershot/internal/shotdetection"
	"github.com/banshee-data/lasershot/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	configPath  = flag.String("config", "", "Tuning config JSON (defaults apply when empty)")
	dbPath      = flag.String("db", "shots.db", "SQLite session log; empty keeps events in memory only")
	cameraURL   = flag.String("camera-url", "", "MJPEG or JPEG snapshot URL of the shot camera")
	cameraUser  = flag.String("camera-user", "", "Basic auth user for -camera-url")
	cameraPass  = flag.String("camera-pass", "", "Basic auth password for -camera-url")
	usbIndex    = flag.Int("usb", -1, "USB camera index (requires a gocv build)")
	replayDir   = flag.String("replay", "", "Directory of recorded frames to replay instead of a camera")
	arenaURL    = flag.String("arena-url", "", "MJPEG URL of the projected arena feed; enables arena masking")
	arenaReplay = flag.String("arena-replay", "", "Directory of recorded arena frames")
	calibrate   = flag.Bool("calibrate", true, "Start baseline calibration as soon as the camera opens")
	debug       = flag.Bool("debug", false, "Log per-frame diagnostics")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("shotcam", version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	monitoring.SetDebug(*debug)

	tuning := config.DefaultTuningConfig()
	if *configPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(*configPath); err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	registrar := ipcam.NewRegistrar(ipcam.Config{Tuning: tuning})
	source, err := openSource(registrar, tuning)
	if err != nil {
		log.Fatalf("failed to set up camera: %v", err)
	}

	detector, err := shotdetection.Select(shotdetection.NewFlashDetector(shotdetection.FlashParamsFromTuning(tuning)))
	if err != nil {
		log.Fatalf("failed to select shot detector: %v", err)
	}

	memory := events.NewMemorySink(5000)
	bus := events.NewBus(memory, events.LogSink{})
	var store api.Store = api.MemoryStore{Sink: memory}
	var database *db.DB
	if *dbPath != "" {
		database, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
		dbSink := events.NewAsyncSink(database, 1024)
		defer dbSink.Close()
		bus.Attach(dbSink)
		store = database
	}

	var arena *arenamask.Manager
	var arenaFeed *arenamask.FeedReader
	arenaSource, err := openArenaSource(registrar, tuning)
	if err != nil {
		log.Fatalf("failed to set up arena feed: %v", err)
	}
	if arenaSource != nil {
		arena = arenamask.NewManager(tuning)
		arenaFeed = arenamask.NewFeedReader(arenamask.FeedConfig{
			Source:       arenaSource,
			Ingestor:     arenamask.NewIngestor(arena, arenamask.NewBuilder(arenamask.BuilderParamsFromTuning(tuning))),
			PollInterval: tuning.GetPollInterval(),
			MaxBackoff:   tuning.GetMaxPollBackoff(),
		})
	}

	manager, err := camera.NewManager(camera.Config{
		Source:   source,
		Detector: detector,
		Sink:     bus,
		Arena:    arena,
		Tuning:   tuning,
	})
	if err != nil {
		log.Fatalf("failed to create camera manager: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// capture loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if !source.Open() {
			log.Printf("failed to open %s", source.Name())
			stop()
			return
		}
		if *calibrate {
			if err := manager.StartCalibration(); err != nil {
				log.Printf("failed to start calibration: %v", err)
			}
		}
		if err := manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("capture loop stopped: %v", err)
		}
		log.Print("capture routine terminated")
		// a camera that closed on its own ends the session
		stop()
	}()

	if arenaFeed != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !arenaSource.Open() {
				log.Printf("failed to open arena feed %s", arenaSource.Name())
				return
			}
			defer arenaSource.Close()
			if err := arenaFeed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("arena feed stopped: %v", err)
			}
			log.Print("arena routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(api.Config{
			Camera:    manager,
			Store:     store,
			Arena:     arena,
			Bus:       bus,
			Registrar: registrar,
			Version:   version.String(),
		}).ServeMux()
		if database != nil {
			if err := database.AttachAdminRoutes(mux); err != nil {
				log.Printf("admin routes unavailable: %v", err)
			}
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// openSource picks the shot camera from the flags: a replay directory, an IP
// camera or a USB device, in that order.
func openSource(registrar *ipcam.Registrar, tuning *config.TuningConfig) (camera.FrameSource, error) {
	switch {
	case *replayDir != "":
		return replay.FromDir(os.DirFS(*replayDir), ".", replay.Options{
			Name:     "replay:" + *replayDir,
			Interval: frameInterval(tuning),
			Realtime: true,
		})
	case *cameraURL != "":
		return registrar.Register("camera", *cameraURL, *cameraUser, *cameraPass)
	case *usbIndex >= 0:
		return device.New(device.Options{Index: *usbIndex})
	}
	return nil, errors.New("one of -replay, -camera-url or -usb is required")
}

// openArenaSource returns nil when arena masking is not configured.
func openArenaSource(registrar *ipcam.Registrar, tuning *config.TuningConfig) (camera.FrameSource, error) {
	switch {
	case *arenaReplay != "":
		return replay.FromDir(os.DirFS(*arenaReplay), ".", replay.Options{
			Name:     "arena-replay:" + *arenaReplay,
			Interval: time.Second / time.Duration(max(1, tuning.GetArenaFPS())),
			Realtime: true,
		})
	case *arenaURL != "":
		return registrar.Register("arena", *arenaURL, "", "")
	}
	return nil, nil
}

func frameInterval(tuning *config.TuningConfig) time.Duration {
	if fps := tuning.GetDefaultFPS(); fps > 0 {
		return time.Duration(float64(time.Second) / fps)
	}
	return 33 * time.Millisecond
}
