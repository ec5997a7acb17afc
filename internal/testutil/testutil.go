// Package testutil provides shared test utilities and synthetic image
// fixtures for the capture, arena and detection tests.
package testutil

import (
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
)

// Common fixture colours.
var (
	Background = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	Projected  = color.RGBA{R: 200, G: 200, B: 200, A: 255}
	RedLaser   = color.RGBA{R: 255, G: 30, B: 30, A: 255}
	GreenLaser = color.RGBA{R: 30, G: 255, B: 30, A: 255}
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// Solid returns a w x h RGBA image filled with c.
func Solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// FillRect paints r (clipped to the image) with c.
func FillRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// Square returns the size x size rectangle whose top-left corner is (x, y).
func Square(x, y, size int) image.Rectangle {
	return image.Rect(x, y, x+size, y+size)
}
