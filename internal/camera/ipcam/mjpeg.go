package ipcam

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
)

// errCorruptPart marks a part that arrived intact but did not decode. The
// stream itself is still usable.
var errCorruptPart = errors.New("corrupt jpeg part")

// streamReader yields JPEG images from a camera response: either a
// multipart/x-mixed-replace stream or a single image/jpeg snapshot.
type streamReader struct {
	parts  *multipart.Reader
	single io.Reader
}

func newStreamReader(resp *http.Response) (*streamReader, error) {
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("content type: %w", err)
	}
	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		boundary := strings.TrimPrefix(params["boundary"], "--")
		if boundary == "" {
			return nil, errors.New("multipart stream without boundary")
		}
		return &streamReader{parts: multipart.NewReader(resp.Body, boundary)}, nil
	case mediaType == "image/jpeg":
		return &streamReader{single: resp.Body}, nil
	default:
		return nil, fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func (s *streamReader) next() (io.Reader, error) {
	if s.parts == nil {
		if s.single == nil {
			return nil, io.EOF
		}
		r := s.single
		s.single = nil
		return r, nil
	}
	for {
		p, err := s.parts.NextPart()
		if err != nil {
			return nil, err
		}
		ct := p.Header.Get("Content-Type")
		if ct == "" || strings.HasPrefix(ct, "image/jpeg") {
			return p, nil
		}
	}
}

// Next decodes the next JPEG part. It returns io.EOF at end of stream and an
// error wrapping errCorruptPart for a part that fails to decode.
func (s *streamReader) Next() (image.Image, error) {
	r, err := s.next()
	if err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptPart, err)
	}
	return img, nil
}

// NextConfig reads only the header of the next JPEG part.
func (s *streamReader) NextConfig() (image.Config, error) {
	r, err := s.next()
	if err != nil {
		return image.Config{}, err
	}
	cfg, err := jpeg.DecodeConfig(r)
	if err != nil {
		return image.Config{}, fmt.Errorf("decode jpeg header: %w", err)
	}
	return cfg, nil
}
