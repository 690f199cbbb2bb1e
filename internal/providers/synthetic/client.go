// Package synthetic renders deterministic stand-in results so the pipeline
// can run end to end without an external image service.
package synthetic

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"stager/internal/infra"
)

// Options configures the synthetic renderer.
type Options struct {
	// Delay simulates model latency.
	Delay  time.Duration
	Logger *infra.Logger
}

// Client overlays a seeded pattern on the source image.
type Client struct {
	delay  time.Duration
	logger *infra.Logger
}

// Request carries the inputs that determine the output.
type Request struct {
	Image     []byte
	Prompt    string
	RequestID string
}

func NewClient(opts Options) *Client {
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{delay: opts.Delay, logger: logger}
}

// Render returns a PNG derived from the source image. Identical requests
// produce identical bytes.
func (c *Client) Render(ctx context.Context, req Request) ([]byte, error) {
	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(req.Image))
	if err != nil {
		return nil, fmt.Errorf("synthetic: decode source: %w", err)
	}

	seed := deterministicSeed(req.RequestID, req.Prompt, len(req.Image))
	bounds := src.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(img, img.Bounds(), src, bounds.Min, draw.Src)

	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	accent := colorFromSeed(seed, 0)
	accent.A = 96
	stripeHeight := maxInt(8, height/12)
	for y := height / 2; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y, width, minInt(height, y+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 1)
	for i := 0; i < width; i += maxInt(16, width/32) {
		for y := 0; y < height; y++ {
			x := i + y
			if x >= width {
				break
			}
			img.Set(x, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("synthetic: encode: %w", err)
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("seed", seed).
		Int("width", width).
		Int("height", height).
		Msg("synthetic: rendered result")

	return buf.Bytes(), nil
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{
		R: parseHexByte(segment[0:2]),
		G: parseHexByte(segment[2:4]),
		B: parseHexByte(segment[4:6]),
		A: 255,
	}
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
