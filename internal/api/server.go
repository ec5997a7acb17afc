// Package api serves the HTTP control and status surface of a capture
// session: calibration commands, projection bounds, the shot log and its
// chart, and IP camera registration.
package api

import (
	"image"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/lasershot/internal/arenamask"
	"github.com/banshee-data/lasershot/internal/camera"
	"github.com/banshee-data/lasershot/internal/camera/ipcam"
	"github.com/banshee-data/lasershot/internal/events"
	"github.com/banshee-data/lasershot/internal/monitoring"
	"github.com/banshee-data/lasershot/internal/shotdetection"
	"github.com/banshee-data/lasershot/internal/timeutil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Camera is the control surface of a running capture session.
type Camera interface {
	Stats() camera.Stats
	StartCalibration() error
	StopCalibration() error
	EnableArenaMasking() error
	ResetCalibration()
	ProjectionBounds() image.Rectangle
	SetProjectionBounds(image.Rectangle)
}

// Store is the session log read path.
type Store interface {
	RecentEvents(kind events.Kind, limit int) ([]events.Event, error)
	Shots(limit int) ([]shotdetection.Shot, error)
}

// Registrar manages IP cameras.
type Registrar interface {
	Register(name, rawURL, user, pass string) (*ipcam.Camera, error)
	Unregister(name string) bool
	Names() []string
}

// Config wires a Server. Camera and Store are required; the other
// collaborators disable their endpoints when nil.
type Config struct {
	Camera    Camera
	Store     Store
	Arena     *arenamask.Manager
	Bus       *events.Bus
	Registrar Registrar
	Clock     timeutil.Clock
	Version   string
}

type Server struct {
	camera    Camera
	store     Store
	arena     *arenamask.Manager
	bus       *events.Bus
	registrar Registrar
	clock     timeutil.Clock
	version   string

	sessionID string
	started   time.Time
}

func NewServer(cfg Config) *Server {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{
		camera:    cfg.Camera,
		store:     cfg.Store,
		arena:     cfg.Arena,
		bus:       cfg.Bus,
		registrar: cfg.Registrar,
		clock:     clock,
		version:   cfg.Version,
		sessionID: uuid.NewString(),
		started:   clock.Now(),
	}
}

// SessionID identifies this server instance.
func (s *Server) SessionID() string { return s.sessionID }

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/calibration/start", s.calibrationCommand(s.camera.StartCalibration))
	mux.HandleFunc("/api/calibration/stop", s.calibrationCommand(s.camera.StopCalibration))
	mux.HandleFunc("/api/calibration/arena", s.calibrationCommand(s.camera.EnableArenaMasking))
	mux.HandleFunc("/api/calibration/reset", s.calibrationCommand(func() error {
		s.camera.ResetCalibration()
		return nil
	}))
	mux.HandleFunc("/api/projection", s.handleProjection)
	mux.HandleFunc("/api/arena/delay", s.handleArenaDelay)
	mux.HandleFunc("/api/targets", s.handleTargets)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/shots", s.listShots)
	mux.HandleFunc("/api/shots/chart", s.showShotChart)
	mux.HandleFunc("/api/ipcams", s.handleIPCams)
	return mux
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
		monitoring.Logf(
			"[api] [%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// limitParam parses ?limit=, falling back to def.
func limitParam(r *http.Request, def int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
