// Package frame defines the immutable timestamped image passed from frame
// sources to the capture loop, the arena mask builder and shot detectors.
package frame

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Frame is one captured image. Image, Timestamp and Seq must not be modified
// once the frame has been handed to a consumer.
type Frame struct {
	Image *image.RGBA
	// Timestamp is the capture time in milliseconds.
	Timestamp int64
	// Seq is assigned by the capture loop and increases by one per new frame.
	Seq uint64
}

// Dimension is a width/height pair used for camera view sizes.
type Dimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsZero reports whether the dimension has not been set.
func (d Dimension) IsZero() bool { return d.Width == 0 && d.Height == 0 }

// New builds a Frame from any image, copying it into an RGBA buffer anchored
// at the origin so later consumers never share the producer's pixels.
func New(img image.Image, timestamp int64) *Frame {
	return &Frame{Image: ToRGBA(img), Timestamp: timestamp}
}

// Fit builds a Frame from img scaled to d. A zero d, or one matching the
// image, keeps the native resolution.
func Fit(img image.Image, d Dimension, timestamp int64) *Frame {
	b := img.Bounds()
	if d.IsZero() || (d.Width == b.Dx() && d.Height == b.Dy()) {
		return New(img, timestamp)
	}
	dst := image.NewRGBA(image.Rect(0, 0, d.Width, d.Height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return &Frame{Image: dst, Timestamp: timestamp}
}

// WithSeq returns a shallow copy of f carrying the given sequence number and
// timestamp. The pixel buffer is shared, which is safe because frames are
// never mutated.
func (f *Frame) WithSeq(seq uint64, timestamp int64) *Frame {
	return &Frame{Image: f.Image, Timestamp: timestamp, Seq: seq}
}

// Size returns the frame's pixel dimensions.
func (f *Frame) Size() Dimension {
	if f == nil || f.Image == nil {
		return Dimension{}
	}
	b := f.Image.Bounds()
	return Dimension{Width: b.Dx(), Height: b.Dy()}
}

// ToRGBA copies img into a new RGBA image whose bounds start at (0,0).
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Luma converts img to 8-bit luminance using the BT.601 weights of
// color.GrayModel. The result's bounds start at (0,0).
func Luma(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Scale resamples a luminance image to the given width, preserving aspect
// ratio. Images already at or below width are returned unchanged.
func Scale(src *image.Gray, width int) *image.Gray {
	b := src.Bounds()
	if width <= 0 || b.Dx() <= width {
		return src
	}
	height := b.Dy() * width / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// LumaAt returns the BT.601 luminance of an RGBA pixel.
func LumaAt(c color.RGBA) uint8 {
	return color.GrayModel.Convert(c).(color.Gray).Y
}
