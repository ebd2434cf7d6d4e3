package converter

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const DefaultQuality = 50

var ErrDecode = errors.New("image decode failed")

type Converter struct {
	logger  *zap.Logger
	quality int
}

func NewConverter(logger *zap.Logger, quality int) *Converter {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &Converter{logger: logger, quality: quality}
}

func (c *Converter) Quality() int {
	return c.quality
}

// Convert re-encodes any decodable image as an opaque JPEG at the configured
// quality. Dimensions are preserved; EXIF orientation is not applied.
func (c *Converter) Convert(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	rgb := dropAlpha(src)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, rgb, imaging.JPEG, imaging.JPEGQuality(c.quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	c.logger.Debug("Conversion completed",
		zap.Int("width", rgb.Bounds().Dx()),
		zap.Int("height", rgb.Bounds().Dy()),
		zap.Int("input_bytes", len(data)),
		zap.Int("output_bytes", buf.Len()),
	)

	return buf.Bytes(), nil
}

// dropAlpha flattens palette and alpha models to three opaque channels.
func dropAlpha(src image.Image) *image.NRGBA {
	dst := imaging.Clone(src)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}
