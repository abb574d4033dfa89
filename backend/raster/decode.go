package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/gogpu/vecsync/vector"
)

// FormatRGBA names raw non-premultiplied 8-bit RGBA pixels, row by row.
const FormatRGBA = "rgba"

// maxImagePixels bounds the pixel count of a decoded image.
const maxImagePixels = 1 << 25

// ErrImageTooLarge is returned for an image whose header declares more
// than maxImagePixels pixels.
var ErrImageTooLarge = errors.New("raster: image too large")

func decodeImage(im *vector.Image) (image.Image, error) {
	if im.Format == FormatRGBA {
		w, h := int(im.Width), int(im.Height)
		if uint64(im.Width)*uint64(im.Height)*4 != uint64(len(im.Data)) {
			return nil, fmt.Errorf("raster: rgba image %dx%d has %d bytes", w, h, len(im.Data))
		}
		return &image.NRGBA{Pix: im.Data, Stride: 4 * w, Rect: image.Rect(0, 0, w, h)}, nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(im.Data))
	if err != nil {
		return nil, fmt.Errorf("raster: decode %s image: %w", im.Format, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || uint64(cfg.Width)*uint64(cfg.Height) > maxImagePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	img, format, err := image.Decode(bytes.NewReader(im.Data))
	if err != nil {
		return nil, fmt.Errorf("raster: decode %s image: %w", im.Format, err)
	}
	if im.Format != "" && format != im.Format {
		return nil, fmt.Errorf("raster: image declared %s but data is %s", im.Format, format)
	}
	return img, nil
}
