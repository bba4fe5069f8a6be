package imageops

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	// extra decoders for generated artifacts and captures
	_ "image/gif"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
)

// Error is returned for any decode, transform or write failure.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("image %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Ops performs crop and composite operations on image files.
type Ops struct {
	Quality int
}

// New returns Ops writing JPEGs at quality 90.
func New() *Ops {
	return &Ops{Quality: 90}
}

// Dimensions returns the pixel size of the image at path without decoding it fully.
func (o *Ops) Dimensions(path string) (int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, &Error{Op: "open", Path: path, Err: err}
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, &Error{Op: "decode", Path: path, Err: err}
	}
	return cfg.Width, cfg.Height, nil
}

// Crop extracts the width x height region at (left, top) from src and writes it to dest.
func (o *Ops) Crop(ctx context.Context, src, dest string, top, left, width, height int) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "crop", Path: src, Err: err}
	}

	img, err := decodeFile(src)
	if err != nil {
		return err
	}

	b := img.Bounds()
	rect := image.Rect(left, top, left+width, top+height).Add(b.Min)
	if width <= 0 || height <= 0 || !rect.In(b) {
		return &Error{Op: "crop", Path: src, Err: fmt.Errorf("region %v outside image bounds %v", rect, b)}
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(out, out.Bounds(), img, rect.Min, xdraw.Src)

	return o.encodeFile(dest, out)
}

// Composite resizes overlay to width x height and draws it over src at
// (offsetX, offsetY), writing the result to dest.
func (o *Ops) Composite(ctx context.Context, src, overlay, dest string, offsetX, offsetY, width, height int) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "composite", Path: src, Err: err}
	}
	if width <= 0 || height <= 0 {
		return &Error{Op: "composite", Path: overlay, Err: fmt.Errorf("invalid overlay size %dx%d", width, height)}
	}

	base, err := decodeFile(src)
	if err != nil {
		return err
	}
	top, err := decodeFile(overlay)
	if err != nil {
		return err
	}

	b := base.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(out, out.Bounds(), base, b.Min, xdraw.Src)

	resized := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(resized, resized.Bounds(), top, top.Bounds(), xdraw.Src, nil)

	at := image.Rect(offsetX, offsetY, offsetX+width, offsetY+height)
	xdraw.Draw(out, at, resized, image.Point{}, xdraw.Over)

	return o.encodeFile(dest, out)
}

func decodeFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &Error{Op: "open", Path: path, Err: err}
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, &Error{Op: "decode", Path: path, Err: err}
	}
	return img, nil
}

func (o *Ops) encodeFile(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &Error{Op: "write", Path: path, Err: err}
	}

	file, err := os.Create(path)
	if err != nil {
		return &Error{Op: "write", Path: path, Err: err}
	}

	quality := o.Quality
	if quality <= 0 {
		quality = jpeg.DefaultQuality
	}
	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: quality}); err != nil {
		file.Close()
		return &Error{Op: "encode", Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &Error{Op: "write", Path: path, Err: err}
	}
	return nil
}
