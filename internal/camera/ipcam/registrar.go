package ipcam

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/banshee-data/lasershot/internal/camera"
	"github.com/banshee-data/lasershot/internal/config"
	"github.com/banshee-data/lasershot/internal/frame"
	"github.com/banshee-data/lasershot/internal/httputil"
	"github.com/banshee-data/lasershot/internal/monitoring"
	"github.com/banshee-data/lasershot/internal/timeutil"
)

// Config wires a Registrar. Every field is optional.
type Config struct {
	Client httputil.HTTPClient
	Clock  timeutil.Clock
	Tuning *config.TuningConfig
	// Devices holds registered camera names. Defaults to a private registry.
	Devices *camera.Registry
	// Open holds names of open sources. Defaults to camera.OpenRegistry.
	Open *camera.Registry
}

// Registrar validates, probes and tracks IP cameras.
type Registrar struct {
	client     httputil.HTTPClient
	clock      timeutil.Clock
	timeout    time.Duration
	asyncClose bool
	devices    *camera.Registry
	open       *camera.Registry

	mu      sync.Mutex
	cameras map[string]*Camera
}

// NewRegistrar builds a Registrar from cfg.
func NewRegistrar(cfg Config) *Registrar {
	tuning := cfg.Tuning
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	r := &Registrar{
		client:     cfg.Client,
		clock:      cfg.Clock,
		timeout:    tuning.GetConnectionTimeout(),
		asyncClose: tuning.GetAsyncClose(),
		devices:    cfg.Devices,
		open:       cfg.Open,
		cameras:    make(map[string]*Camera),
	}
	if r.client == nil {
		r.client = httputil.NewStreamingClient(r.timeout)
	}
	if r.clock == nil {
		r.clock = timeutil.RealClock{}
	}
	if r.devices == nil {
		r.devices = camera.NewRegistry()
	}
	if r.open == nil {
		r.open = camera.OpenRegistry
	}
	return r
}

type probeResult struct {
	size frame.Dimension
	err  error
}

// Register validates rawURL, probes the stream for its resolution and
// records the camera under name. The probe is bounded by the connection
// timeout on the registrar clock; on any failure the registration is rolled
// back.
func (r *Registrar) Register(name, rawURL, user, pass string) (*Camera, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", name, camera.ErrMalformedEndpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%s: %w: %q needs an http or https scheme and a host", name, camera.ErrMalformedEndpoint, rawURL)
	}
	if err := r.devices.Add(name); err != nil {
		return nil, err
	}

	cam := newCamera(name, u.String(), user, pass, frame.Dimension{}, r)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan probeResult, 1)
	go func() {
		size, err := r.probe(ctx, cam)
		done <- probeResult{size: size, err: err}
	}()

	timer := r.clock.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			r.devices.Remove(name)
			return nil, classify(name, res.err)
		}
		cam.native = res.size
	case <-timer.C():
		cancel()
		r.devices.Remove(name)
		monitoring.Logf("[ipcam] %s: no answer from %s within %s", name, u.Redacted(), r.timeout)
		return nil, fmt.Errorf("%s: %w after %s", name, camera.ErrConnectionTimeout, r.timeout)
	}

	r.mu.Lock()
	r.cameras[name] = cam
	r.mu.Unlock()
	monitoring.Logf("[ipcam] %s: registered %s (%dx%d)", name, u.Redacted(), cam.native.Width, cam.native.Height)
	return cam, nil
}

// probe fetches the stream and reads the first JPEG header.
func (r *Registrar) probe(ctx context.Context, cam *Camera) (frame.Dimension, error) {
	resp, err := cam.connect(ctx)
	if err != nil {
		return frame.Dimension{}, err
	}
	defer resp.Body.Close()
	stream, err := newStreamReader(resp)
	if err != nil {
		return frame.Dimension{}, fmt.Errorf("%w: %v", camera.ErrDeviceUnavailable, err)
	}
	cfg, err := stream.NextConfig()
	if err != nil {
		return frame.Dimension{}, fmt.Errorf("%w: %v", camera.ErrDeviceUnavailable, err)
	}
	return frame.Dimension{Width: cfg.Width, Height: cfg.Height}, nil
}

func classify(name string, err error) error {
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		return fmt.Errorf("%s: %w: %w", name, camera.ErrDeviceUnavailable, err)
	case errors.Is(err, camera.ErrDeviceUnavailable):
		return fmt.Errorf("%s: %w", name, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w: %w", name, camera.ErrConnectionTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", name, camera.ErrDeviceUnavailable, err)
}

// Unregister closes the camera if open and forgets it.
func (r *Registrar) Unregister(name string) bool {
	r.mu.Lock()
	cam, ok := r.cameras[name]
	delete(r.cameras, name)
	r.mu.Unlock()
	if !ok {
		return false
	}
	cam.Close()
	r.devices.Remove(name)
	return true
}

// Camera returns the registered camera called name.
func (r *Registrar) Camera(name string) (*Camera, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cam, ok := r.cameras[name]
	return cam, ok
}

// Names lists registered cameras.
func (r *Registrar) Names() []string { return r.devices.Names() }
