// Package ipcam implements network cameras that serve MJPEG over HTTP.
package ipcam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/lasershot/internal/camera"
	"github.com/banshee-data/lasershot/internal/frame"
	"github.com/banshee-data/lasershot/internal/httputil"
	"github.com/banshee-data/lasershot/internal/monitoring"
	"github.com/banshee-data/lasershot/internal/timeutil"
)

// Camera is a FrameSource backed by an MJPEG HTTP endpoint. A reader
// goroutine keeps only the latest decoded image; NextFrame hands each image
// out once.
type Camera struct {
	name       string
	url        string
	user, pass string
	client     httputil.HTTPClient
	clock      timeutil.Clock
	open       *camera.Registry
	asyncClose bool

	isOpen atomic.Bool

	mu       sync.Mutex
	native   frame.Dimension
	view     frame.Dimension
	latest   *frame.Frame
	fresh    bool
	cancel   context.CancelFunc
	reader   chan struct{}
	teardown chan struct{}
}

var _ camera.FrameSource = (*Camera)(nil)

func newCamera(name, url, user, pass string, native frame.Dimension, r *Registrar) *Camera {
	done := make(chan struct{})
	close(done)
	return &Camera{
		name:       name,
		url:        url,
		user:       user,
		pass:       pass,
		client:     r.client,
		clock:      r.clock,
		open:       r.open,
		asyncClose: r.asyncClose,
		native:     native,
		teardown:   done,
	}
}

func (c *Camera) Name() string { return c.name }

// URL returns the stream address.
func (c *Camera) URL() string { return c.url }

func (c *Camera) IsOpen() bool { return c.isOpen.Load() }

// SetViewSize scales delivered frames to d. A zero size delivers native
// frames.
func (c *Camera) SetViewSize(d frame.Dimension) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = d
}

// ViewSize returns the delivered frame size.
func (c *Camera) ViewSize() frame.Dimension {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view.IsZero() {
		return c.native
	}
	return c.view
}

func (c *Camera) request(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	if c.user != "" || c.pass != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
	return req, nil
}

// Open connects to the stream and starts the reader goroutine. It waits for
// the teardown of a previous session first.
func (c *Camera) Open() bool {
	if c.isOpen.Load() {
		return true
	}
	<-c.TeardownDone()

	if err := c.open.Add(c.name); err != nil {
		monitoring.Logf("[ipcam] %s: %v", c.name, err)
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	resp, err := c.connect(ctx)
	if err != nil {
		cancel()
		c.open.Remove(c.name)
		monitoring.Logf("[ipcam] %s: open failed: %v", c.name, err)
		return false
	}
	stream, err := newStreamReader(resp)
	if err != nil {
		resp.Body.Close()
		cancel()
		c.open.Remove(c.name)
		monitoring.Logf("[ipcam] %s: open failed: %v", c.name, err)
		return false
	}

	reader := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.reader = reader
	c.latest = nil
	c.fresh = false
	c.mu.Unlock()
	c.isOpen.Store(true)

	go c.read(resp.Body, stream, reader)
	monitoring.Logf("[ipcam] %s: streaming from %s", c.name, c.url)
	return true
}

func (c *Camera) connect(ctx context.Context) (*http.Response, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", camera.ErrDeviceUnavailable, resp.StatusCode)
	}
	return resp, nil
}

func (c *Camera) read(body io.ReadCloser, stream *streamReader, done chan struct{}) {
	defer close(done)
	defer body.Close()
	for {
		img, err := stream.Next()
		if errors.Is(err, errCorruptPart) {
			monitoring.Debugf("[ipcam] %s: skipping part: %v", c.name, err)
			continue
		}
		if err != nil {
			if c.isOpen.Swap(false) {
				// the stream ended on its own
				c.open.Remove(c.name)
				c.mu.Lock()
				if c.cancel != nil {
					c.cancel()
				}
				c.mu.Unlock()
				if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
					monitoring.Logf("[ipcam] %s: stream ended: %v", c.name, err)
				}
			}
			return
		}
		f := frame.New(img, timeutil.Millis(c.clock))
		c.mu.Lock()
		c.latest = f
		c.fresh = true
		c.native = f.Size()
		c.mu.Unlock()
	}
}

// NextFrame returns the newest image if it has not been returned before.
func (c *Camera) NextFrame() (*frame.Frame, error) {
	c.mu.Lock()
	f, fresh, view := c.latest, c.fresh, c.view
	c.fresh = false
	c.mu.Unlock()

	if !fresh || f == nil {
		if !c.isOpen.Load() {
			return nil, camera.ErrNoFrameAvailable
		}
		return nil, camera.ErrNoNewFrame
	}
	if view.IsZero() || view == f.Size() {
		return f, nil
	}
	return frame.Fit(f.Image, view, f.Timestamp), nil
}

// Close stops the stream. The open flag and the registry entry are updated
// before Close returns; with async close the connection teardown runs on its
// own goroutine and TeardownDone reports its completion.
func (c *Camera) Close() bool {
	if !c.isOpen.Swap(false) {
		return false
	}
	c.open.Remove(c.name)

	teardown := make(chan struct{})
	c.mu.Lock()
	cancel, reader := c.cancel, c.reader
	c.teardown = teardown
	c.mu.Unlock()

	task := func() {
		defer close(teardown)
		if cancel != nil {
			cancel()
		}
		if reader != nil {
			<-reader
		}
	}
	if c.asyncClose {
		go task()
	} else {
		task()
	}
	monitoring.Logf("[ipcam] %s: closed", c.name)
	return true
}

// TeardownDone is closed once the last Close has fully released the
// connection.
func (c *Camera) TeardownDone() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teardown
}
