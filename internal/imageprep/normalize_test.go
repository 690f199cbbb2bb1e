package imageprep

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeProducesSquarePNG(t *testing.T) {
	tests := []struct {
		name string
		w, h int
	}{
		{name: "landscape", w: 320, h: 180},
		{name: "portrait", w: 90, h: 240},
		{name: "square", w: 64, h: 64},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Normalize(encodeJPEG(t, tc.w, tc.h), 128)
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("decode output: %v", err)
			}
			if format != "png" {
				t.Fatalf("format = %q, want png", format)
			}
			if cfg.Width != 128 || cfg.Height != 128 {
				t.Fatalf("size = %dx%d, want 128x128", cfg.Width, cfg.Height)
			}
		})
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	if _, err := Normalize([]byte("not an image"), 64); !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("expected ErrUnsupportedImage, got %v", err)
	}
}

func TestCoverSquareIsCentered(t *testing.T) {
	got := coverSquare(image.Rect(0, 0, 300, 100))
	want := image.Rect(100, 0, 200, 100)
	if got != want {
		t.Fatalf("coverSquare = %v, want %v", got, want)
	}
}

func TestEditMaskIsTransparent(t *testing.T) {
	data, err := EditMask(16, 16)
	if err != nil {
		t.Fatalf("mask: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 16 {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	if _, _, _, a := img.At(8, 8).RGBA(); a != 0 {
		t.Fatalf("alpha = %d, want 0", a)
	}
}

func TestEditMaskNonSquare(t *testing.T) {
	data, err := EditMask(30, 20)
	if err != nil {
		t.Fatalf("mask: %v", err)
	}
	w, h, err := Dimensions(data)
	if err != nil || w != 30 || h != 20 {
		t.Fatalf("Dimensions = %dx%d, %v; want 30x20", w, h, err)
	}
	if _, err := EditMask(0, 20); err == nil {
		t.Fatalf("expected error for zero width")
	}
}

func TestPreprocessorHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Preprocessor{Size: 32}).Prepare(ctx, encodeJPEG(t, 10, 10)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDimensions(t *testing.T) {
	w, h, err := Dimensions(encodeJPEG(t, 40, 30))
	if err != nil || w != 40 || h != 30 {
		t.Fatalf("Dimensions = %d, %d, %v", w, h, err)
	}
}
