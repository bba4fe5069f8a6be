package imageops

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

func writeJPEG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
}

func TestCrop(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	writeJPEG(t, src, 1280, 720, color.White)

	ops := New()
	dest := filepath.Join(dir, "src_2.jpg")
	if err := ops.Crop(context.Background(), src, dest, 0, 448, 832, 468); err != nil {
		t.Fatalf("Crop failed: %v", err)
	}

	w, h, err := ops.Dimensions(dest)
	if err != nil {
		t.Fatalf("Dimensions failed: %v", err)
	}
	if w != 832 || h != 468 {
		t.Errorf("Expected 832x468, got %dx%d", w, h)
	}
}

func TestCropOutOfBounds(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	writeJPEG(t, src, 100, 100, color.White)

	err := New().Crop(context.Background(), src, filepath.Join(dir, "out.jpg"), 50, 50, 60, 60)
	var opErr *Error
	if !errors.As(err, &opErr) {
		t.Fatalf("Expected *Error, got %v", err)
	}
	if opErr.Op != "crop" {
		t.Errorf("Expected op crop, got %s", opErr.Op)
	}
}

func TestCropMissingSource(t *testing.T) {
	err := New().Crop(context.Background(), "/does/not/exist.jpg", filepath.Join(t.TempDir(), "o.jpg"), 0, 0, 1, 1)
	var opErr *Error
	if !errors.As(err, &opErr) || opErr.Op != "open" {
		t.Fatalf("Expected open error, got %v", err)
	}
}

func TestComposite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	overlay := filepath.Join(dir, "overlay.jpg")
	dest := filepath.Join(dir, "out.jpg")
	writeJPEG(t, src, 200, 100, color.Black)
	writeJPEG(t, overlay, 10, 10, color.White)

	ops := New()
	if err := ops.Composite(context.Background(), src, overlay, dest, 20, 30, 50, 40); err != nil {
		t.Fatalf("Composite failed: %v", err)
	}

	f, err := os.Open(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 100 {
		t.Fatalf("Expected output to keep source size, got %v", img.Bounds())
	}

	inside, _, _, _ := img.At(45, 50).RGBA()
	outside, _, _, _ := img.At(5, 5).RGBA()
	if inside < 0xe000 {
		t.Errorf("Expected overlay pixel to be bright, got %x", inside)
	}
	if outside > 0x2000 {
		t.Errorf("Expected source pixel to stay dark, got %x", outside)
	}
}

func TestCompositeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New().Composite(ctx, "a", "b", "c", 0, 0, 1, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
