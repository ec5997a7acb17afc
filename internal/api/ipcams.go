package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/lasershot/internal/camera"
	"github.com/banshee-data/lasershot/internal/frame"
	"github.com/banshee-data/lasershot/internal/httputil"
)

type registerRequest struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
}

type ipcamResponse struct {
	Name string          `json:"name"`
	URL  string          `json:"url,omitempty"`
	Size frame.Dimension `json:"size"`
}

func (s *Server) handleIPCams(w http.ResponseWriter, r *http.Request) {
	if s.registrar == nil {
		httputil.NotFound(w, "ip cameras are not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		names := s.registrar.Names()
		if names == nil {
			names = []string{}
		}
		httputil.WriteJSONOK(w, names)
	case http.MethodPost:
		s.registerIPCam(w, r)
	case http.MethodDelete:
		name := r.URL.Query().Get("name")
		if name == "" {
			httputil.BadRequest(w, "missing 'name' parameter")
			return
		}
		if !s.registrar.Unregister(name) {
			httputil.NotFound(w, fmt.Sprintf("no ip camera named %q", name))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) registerIPCam(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if req.Name == "" {
		httputil.BadRequest(w, "missing camera name")
		return
	}
	cam, err := s.registrar.Register(req.Name, req.URL, req.User, req.Password)
	switch {
	case err == nil:
		httputil.WriteJSON(w, http.StatusCreated, ipcamResponse{Name: cam.Name(), URL: cam.URL(), Size: cam.ViewSize()})
	case errors.Is(err, camera.ErrMalformedEndpoint):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, camera.ErrConnectionTimeout):
		httputil.ServiceUnavailable(w, err.Error())
	case errors.Is(err, camera.ErrDeviceUnavailable):
		httputil.Conflict(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}
