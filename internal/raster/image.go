// Package raster provides the generic grid type every other engine
// package operates on: RGB/RGBA float triples, boolean masks, and
// float64 scalar fields all share the same storage and indexing shape.
package raster

import "github.com/cwbudde/holefill/internal/intcoord"

// RGB is a unit-interval (0..1) color triple.
type RGB struct{ R, G, B float64 }

// RGBA is a unit-interval color quad.
type RGBA struct{ R, G, B, A float64 }

// Image is a dense width×height grid of T, row-major.
//
// It owns its backing slice; Clone produces an independent copy so
// double-buffered algorithms (nnf.Field, the CPU driver's blend
// output) never alias a buffer they mutate in place against one still
// being read.
type Image[T any] struct {
	width, height int
	pix           []T
}

// New allocates a zero-valued width×height image.
func New[T any](width, height int) *Image[T] {
	if width < 0 || height < 0 {
		panic("raster: negative dimension")
	}
	return &Image[T]{width: width, height: height, pix: make([]T, width*height)}
}

// NewFilled allocates a width×height image with every pixel set to v.
func NewFilled[T any](width, height int, v T) *Image[T] {
	img := New[T](width, height)
	for i := range img.pix {
		img.pix[i] = v
	}
	return img
}

func (img *Image[T]) Width() int  { return img.width }
func (img *Image[T]) Height() int { return img.height }

func (img *Image[T]) index(x, y int) int { return y*img.width + x }

// At returns the pixel at (x, y). Coordinates are not bounds-checked
// per axis: it panics only when y*width+x falls outside the pixel
// slice, so an out-of-range x within that range reads a neighbouring
// row. This follows the teacher's direct-index style in renderer_cpu.go.
func (img *Image[T]) At(x, y int) T {
	return img.pix[img.index(x, y)]
}

func (img *Image[T]) AtCoord(c intcoord.Coord) T { return img.At(c.X, c.Y) }

func (img *Image[T]) Set(x, y int, v T) {
	img.pix[img.index(x, y)] = v
}

func (img *Image[T]) SetCoord(c intcoord.Coord, v T) { img.Set(c.X, c.Y, v) }

// Row returns the backing slice for row y, permitting in-place
// row-parallel mutation without per-pixel index arithmetic.
func (img *Image[T]) Row(y int) []T {
	start := y * img.width
	return img.pix[start : start+img.width]
}

// Clone returns an independent copy of img.
func (img *Image[T]) Clone() *Image[T] {
	out := &Image[T]{width: img.width, height: img.height, pix: make([]T, len(img.pix))}
	copy(out.pix, img.pix)
	return out
}

// Recreate reuses img's backing storage for a new width×height grid
// when the size matches, avoiding an allocation on repeated calls —
// the same "reuse the scratch buffer" idiom as the teacher's CPUrenderer
// canvas field.
func (img *Image[T]) Recreate(width, height int) {
	if width == img.width && height == img.height {
		var zero T
		for i := range img.pix {
			img.pix[i] = zero
		}
		return
	}
	img.width, img.height = width, height
	img.pix = make([]T, width*height)
}

// Fill sets every pixel to v.
func (img *Image[T]) Fill(v T) {
	for i := range img.pix {
		img.pix[i] = v
	}
}

// Pixels returns a copy of the backing row-major pixel slice, used by
// checkpoint serialization to snapshot a grid without exposing the
// live backing array.
func (img *Image[T]) Pixels() []T {
	out := make([]T, len(img.pix))
	copy(out, img.pix)
	return out
}

// FromPixels builds an Image from a previously captured row-major
// pixel slice, the checkpoint deserialization counterpart to Pixels.
func FromPixels[T any](width, height int, pix []T) *Image[T] {
	if len(pix) != width*height {
		panic("raster: pixel slice length does not match width*height")
	}
	out := make([]T, len(pix))
	copy(out, pix)
	return &Image[T]{width: width, height: height, pix: out}
}

// ForEach invokes fn for every pixel coordinate in row-major order.
func (img *Image[T]) ForEach(fn func(x, y int, v T)) {
	for y := 0; y < img.height; y++ {
		row := img.Row(y)
		for x, v := range row {
			fn(x, y, v)
		}
	}
}
