package capture

import (
	"bytes"
	"image"
	"image/jpeg"
)

// DefaultJPEGQuality matches a 0.8 quality factor.
const DefaultJPEGQuality = 80

// Encoder compresses a rendered frame into a still-image payload.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
	MIMEType() string
}

// JPEGEncoder encodes frames as baseline JPEG.
type JPEGEncoder struct {
	quality int
}

// NewJPEGEncoder clamps quality to 1..100; zero selects DefaultJPEGQuality.
func NewJPEGEncoder(quality int) *JPEGEncoder {
	switch {
	case quality == 0:
		quality = DefaultJPEGQuality
	case quality < 1:
		quality = 1
	case quality > 100:
		quality = 100
	}
	return &JPEGEncoder{quality: quality}
}

func (e *JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *JPEGEncoder) MIMEType() string {
	return "image/jpeg"
}
