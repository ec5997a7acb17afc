package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/banshee-data/lasershot/internal/camera"
	"github.com/banshee-data/lasershot/internal/events"
	"github.com/banshee-data/lasershot/internal/httputil"
	"github.com/banshee-data/lasershot/internal/timeutil"
)

type statusResponse struct {
	Version   string       `json:"version"`
	SessionID string       `json:"session_id"`
	UptimeSec float64      `json:"uptime_sec"`
	Camera    camera.Stats `json:"camera"`
	ArenaMs   *int64       `json:"arena_delay_ms,omitempty"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := statusResponse{
		Version:   s.version,
		SessionID: s.sessionID,
		UptimeSec: s.clock.Since(s.started).Seconds(),
		Camera:    s.camera.Stats(),
	}
	if s.arena != nil {
		ms := s.arena.Delay().Milliseconds()
		resp.ArenaMs = &ms
	}
	httputil.WriteJSONOK(w, resp)
}

// calibrationCommand runs cmd on POST and answers with the resulting state.
func (s *Server) calibrationCommand(cmd func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		if err := cmd(); err != nil {
			if errors.Is(err, camera.ErrInvalidTransition) {
				httputil.Conflict(w, err.Error())
				return
			}
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, map[string]camera.CalibrationState{"state": s.camera.Stats().State})
	}
}

type rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		b := s.camera.ProjectionBounds()
		httputil.WriteJSONOK(w, rect{X: b.Min.X, Y: b.Min.Y, Width: b.Dx(), Height: b.Dy()})
	case http.MethodPut, http.MethodPost:
		var req rect
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid projection bounds: %v", err))
			return
		}
		if req.Width <= 0 || req.Height <= 0 {
			httputil.BadRequest(w, "width and height must be positive")
			return
		}
		b := image.Rect(req.X, req.Y, req.X+req.Width, req.Y+req.Height)
		s.camera.SetProjectionBounds(b)
		httputil.WriteJSONOK(w, req)
	default:
		httputil.MethodNotAllowed(w)
	}
}

type delayRequest struct {
	DelayMs int64 `json:"delay_ms"`
}

func (s *Server) handleArenaDelay(w http.ResponseWriter, r *http.Request) {
	if s.arena == nil {
		httputil.NotFound(w, "arena masking is not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, delayRequest{DelayMs: s.arena.Delay().Milliseconds()})
	case http.MethodPut, http.MethodPost:
		var req delayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid delay: %v", err))
			return
		}
		if req.DelayMs < 0 {
			httputil.BadRequest(w, "delay_ms must not be negative")
			return
		}
		s.arena.SetDelay(time.Duration(req.DelayMs) * time.Millisecond)
		httputil.WriteJSONOK(w, delayRequest{DelayMs: s.arena.Delay().Milliseconds()})
	default:
		httputil.MethodNotAllowed(w)
	}
}

var targetActions = map[events.TargetAction]bool{
	events.TargetAdded:   true,
	events.TargetRemoved: true,
	events.TargetMoved:   true,
	events.TargetResized: true,
}

// handleTargets records target lifecycle changes reported by the scenario
// front end.
func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.bus == nil {
		httputil.NotFound(w, "event bus is not configured")
		return
	}
	var change events.TargetChange
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid target change: %v", err))
		return
	}
	if change.Name == "" || !targetActions[change.Action] {
		httputil.BadRequest(w, "target needs a name and one of added, removed, moved, resized")
		return
	}
	if err := s.bus.EmitTarget(s.camera.Stats().Name, timeutil.Millis(s.clock), change); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, change)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit, ok := limitParam(r, 100)
	if !ok {
		httputil.BadRequest(w, "Invalid 'limit' parameter")
		return
	}
	evs, err := s.store.RecentEvents(events.Kind(r.URL.Query().Get("kind")), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve events: %v", err))
		return
	}
	if evs == nil {
		evs = []events.Event{}
	}
	httputil.WriteJSONOK(w, evs)
}
