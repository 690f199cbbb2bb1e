// Package imageprep normalizes uploaded photos before they are sent to an
// image edit model.
package imageprep

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultSize is the square edge accepted by the edit endpoint.
const DefaultSize = 1024

// ErrUnsupportedImage is returned when the bytes are not a decodable image.
var ErrUnsupportedImage = errors.New("imageprep: unsupported image")

// Normalize decodes JPEG, PNG, GIF or WebP input, crops the centered square
// covering the frame, scales it to size x size and re-encodes as PNG.
func Normalize(data []byte, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	crop := coverSquare(src.Bounds())
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("imageprep: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EditMask returns a fully transparent width x height PNG, which marks the
// whole frame as editable. The edit endpoint requires it to match the image.
func EditMask(width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("imageprep: invalid mask size %dx%d", width, height)
	}
	mask := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(mask, mask.Bounds(), image.NewUniform(color.NRGBA{}), image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, mask); err != nil {
		return nil, fmt.Errorf("imageprep: encode mask: %w", err)
	}
	return buf.Bytes(), nil
}

// Dimensions reports the pixel size of an encoded image without decoding it.
func Dimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return cfg.Width, cfg.Height, nil
}

func coverSquare(b image.Rectangle) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	side := w
	if h < side {
		side = h
	}
	x0 := b.Min.X + (w-side)/2
	y0 := b.Min.Y + (h-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}

// Preprocessor adapts Normalize to the pipeline's preprocessing hook.
type Preprocessor struct {
	Size int
}

// Prepare normalizes data. The context is checked before the CPU-bound work.
func (p Preprocessor) Prepare(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Normalize(data, p.Size)
}
