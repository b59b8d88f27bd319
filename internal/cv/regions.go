package cv

import (
	"image"
	"math"

	"github.com/nfnt/resize"
)

// Image region types
type Region struct {
	X1, Y1, X2, Y2 int
}

type Point struct {
	X, Y int
}

// NewRegion creates a new region
func NewRegion(x1, y1, x2, y2 int) Region {
	return Region{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// Contains checks if a point is within the region
func (r Region) Contains(p Point) bool {
	return p.X >= r.X1 && p.X <= r.X2 && p.Y >= r.Y1 && p.Y <= r.Y2
}

// Width returns the width of the region
func (r Region) Width() int {
	return r.X2 - r.X1
}

// Height returns the height of the region
func (r Region) Height() int {
	return r.Y2 - r.Y1
}

// ToImageRectangle converts Region to *image.Rectangle for use with CV operations
func (r Region) ToImageRectangle() *image.Rectangle {
	rect := image.Rect(r.X1, r.Y1, r.X2, r.Y2)
	return &rect
}

// CropImage copies the region out of an image into a fresh RGBA anchored at
// the origin. The region is clamped to the image bounds; ok is false when
// the region is empty or inverted, or nothing remains after clamping.
func CropImage(img *image.RGBA, r Region) (*image.RGBA, bool) {
	if r.X2 <= r.X1 || r.Y2 <= r.Y1 {
		return nil, false
	}
	bounds := img.Bounds()
	rect := image.Rect(r.X1, r.Y1, r.X2, r.Y2).Add(bounds.Min).Intersect(bounds)
	if rect.Empty() {
		return nil, false
	}

	w := rect.Dx()
	out := image.NewRGBA(image.Rect(0, 0, w, rect.Dy()))
	for y := 0; y < rect.Dy(); y++ {
		srcOff := img.PixOffset(rect.Min.X, rect.Min.Y+y)
		dstOff := out.PixOffset(0, y)
		copy(out.Pix[dstOff:dstOff+w*4], img.Pix[srcOff:srcOff+w*4])
	}
	return out, true
}

// ScaleImage resamples an image by the given factor using bilinear
// interpolation. Factors at or below zero, a factor of exactly one, or a
// result that would collapse to zero pixels return the original image.
func ScaleImage(img *image.RGBA, scale float64) *image.RGBA {
	if img == nil || scale <= 0 || scale == 1.0 {
		return img
	}

	bounds := img.Bounds()
	w := uint(math.Round(float64(bounds.Dx()) * scale))
	h := uint(math.Round(float64(bounds.Dy()) * scale))
	if w == 0 || h == 0 {
		return img
	}

	return ToRGBA(resize.Resize(w, h, img, resize.Bilinear))
}
