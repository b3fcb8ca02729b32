// Package pyramid builds the coarse-to-fine level schedule the engine
// fills from, and provides the resampling and distance-transform
// primitives each level needs: box-filter downsampling of the color
// image, OR/AND downsampling of the boolean hole mask, a signed
// distance map from which the anchor-weight field of the patch cost
// is built, and structuring-element dilation used
// to build each level's source mask.
package pyramid

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/holefill/internal/intcoord"
	"github.com/cwbudde/holefill/internal/raster"
)

// ErrStructuringElementEven is the InternalInvariantViolated condition
// spec.md §7 calls out by name: a dilation structuring element with an
// even dimension has no well-defined center pixel.
var ErrStructuringElementEven = errors.New("pyramid: structuring element dimensions must be odd")

// Size is a width/height pair, used for both target and source
// dimensions at a pyramid level.
type Size struct {
	Width, Height int
}

// Plan describes one pyramid level's target and source dimensions,
// coarsest first (index 0 is the smallest level the fill starts at).
type Plan struct {
	Target Size
	Source Size
}

// LevelSizes implements spec.md §4.1's pyramidLevelSizes: given a
// level in [0, numLevels), it derives (targetSize, sourceSize) from
// the geometric k_hard_min / k_ideal / k_smallest / k schedule. Level
// 0 returns the originals verbatim; level numLevels-1 returns both
// originals scaled by k_smallest (truncated toward zero); intermediate
// levels scale by k^level. k_hard_min guarantees the coarsest level's
// smallest dimension is never less than patchWidth (P3); k_ideal
// targets a coarsest dimension of about 50 when that is the larger
// constraint.
func LevelSizes(level, numLevels, patchWidth int, origTarget, origSource Size) (Size, Size, error) {
	if level < 0 || level >= numLevels {
		return Size{}, Size{}, fmt.Errorf("pyramid: level %d out of range [0, %d)", level, numLevels)
	}
	if numLevels < 1 {
		return Size{}, Size{}, fmt.Errorf("pyramid: invalid numPyramidLevels %d", numLevels)
	}
	if patchWidth < 3 || patchWidth > 50 || patchWidth%2 == 0 {
		return Size{}, Size{}, fmt.Errorf("pyramid: invalid input: patch width %d must be an odd integer in [3, 50]", patchWidth)
	}
	minDim := origTarget.Width
	for _, d := range []int{origTarget.Height, origSource.Width, origSource.Height} {
		if d < minDim {
			minDim = d
		}
	}
	if minDim < patchWidth {
		return Size{}, Size{}, fmt.Errorf("pyramid: invalid input: every original dimension must be >= patch width %d", patchWidth)
	}

	if level == 0 {
		return origTarget, origSource, nil
	}

	maxTargetDim := origTarget.Width
	if origTarget.Height > maxTargetDim {
		maxTargetDim = origTarget.Height
	}

	kHardMin := float64(patchWidth) / float64(minDim)
	kIdeal := 50.0 / float64(maxTargetDim)
	kSmallest := kHardMin
	if kIdeal > kSmallest {
		kSmallest = kIdeal
	}

	scale := kSmallest
	if level != numLevels-1 {
		k := math.Exp(math.Log(kSmallest) / float64(numLevels-1))
		scale = math.Pow(k, float64(level))
	}

	target := Size{Width: int(float64(origTarget.Width) * scale), Height: int(float64(origTarget.Height) * scale)}
	source := Size{Width: int(float64(origSource.Width) * scale), Height: int(float64(origSource.Height) * scale)}
	return target, source, nil
}

// BuildPlan computes the full level schedule for numLevels levels,
// coarsest first, by calling LevelSizes for every spec-numbered level
// 0..numLevels-1 and reversing the order (spec.md level 0 is full
// resolution; this package's convention, followed by cpubackend and
// gpubackend, is coarsest-first so the fill's outer loop can simply
// walk the slice forward).
func BuildPlan(numLevels, patchWidth int, origTarget, origSource Size) ([]Plan, error) {
	if numLevels < 1 {
		return nil, fmt.Errorf("pyramid: invalid input: numPyramidLevels must be >= 1, got %d", numLevels)
	}
	plans := make([]Plan, numLevels)
	for level := 0; level < numLevels; level++ {
		t, s, err := LevelSizes(level, numLevels, patchWidth, origTarget, origSource)
		if err != nil {
			return nil, err
		}
		plans[numLevels-1-level] = Plan{Target: t, Source: s}
	}
	return plans, nil
}

// Downsample box-filters src down to the given width×height, used to
// build the coarser pyramid level's target image.
func Downsample(src *raster.Image[raster.RGB], width, height int) *raster.Image[raster.RGB] {
	out := raster.New[raster.RGB](width, height)
	sw, sh := src.Width(), src.Height()
	sx := float64(sw) / float64(width)
	sy := float64(sh) / float64(height)

	for y := 0; y < height; y++ {
		y0 := int(float64(y) * sy)
		y1 := int(float64(y+1) * sy)
		if y1 <= y0 {
			y1 = y0 + 1
		}
		if y1 > sh {
			y1 = sh
		}
		for x := 0; x < width; x++ {
			x0 := int(float64(x) * sx)
			x1 := int(float64(x+1) * sx)
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if x1 > sw {
				x1 = sw
			}
			var rSum, gSum, bSum float64
			n := 0
			for yy := y0; yy < y1; yy++ {
				for xx := x0; xx < x1; xx++ {
					p := src.At(xx, yy)
					rSum += p.R
					gSum += p.G
					bSum += p.B
					n++
				}
			}
			if n == 0 {
				n = 1
			}
			out.Set(x, y, raster.RGB{R: rSum / float64(n), G: gSum / float64(n), B: bSum / float64(n)})
		}
	}
	return out
}

// DownsampleBool downsamples a boolean hole mask over each source
// block per spec.md §4.2's downsampleBoolean: logical OR over the
// block when truesPrevail is true (a hole pixel anywhere in the block
// makes the coarse pixel a hole — the caller's choice for target
// masks, so a coarse level never "heals" a hole a finer level still
// needs to route around), logical AND otherwise.
func DownsampleBool(src *raster.Image[bool], width, height int, truesPrevail bool) *raster.Image[bool] {
	out := raster.New[bool](width, height)
	sw, sh := src.Width(), src.Height()
	sx := float64(sw) / float64(width)
	sy := float64(sh) / float64(height)

	for y := 0; y < height; y++ {
		y0 := int(float64(y) * sy)
		y1 := int(float64(y+1) * sy)
		if y1 <= y0 {
			y1 = y0 + 1
		}
		if y1 > sh {
			y1 = sh
		}
		for x := 0; x < width; x++ {
			x0 := int(float64(x) * sx)
			x1 := int(float64(x+1) * sx)
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if x1 > sw {
				x1 = sw
			}
			result := !truesPrevail
			for yy := y0; yy < y1; yy++ {
				for xx := x0; xx < x1; xx++ {
					if truesPrevail {
						result = result || src.At(xx, yy)
					} else {
						result = result && src.At(xx, yy)
					}
				}
			}
			out.Set(x, y, result)
		}
	}
	return out
}

// DistanceMap computes, for every pixel, the signed chamfer (1, √2)
// distance to the nearest hole boundary: positive inside the hole
// (distance to the nearest non-hole pixel, i.e. interior depth),
// negative outside it (negative distance to the nearest hole pixel).
// A two-pass chamfer approximation (forward then backward raster
// scan) is used rather than an exact Euclidean transform, trading a
// small amount of directional bias for a single allocation and no
// priority queue — adequate for biasing anchor weights, not for
// geometric measurement.
func DistanceMap(hole *raster.Image[bool]) *raster.Image[float64] {
	w, h := hole.Width(), hole.Height()
	const inf = 1e9

	posDist := chamfer(hole, w, h, true)
	negDist := chamfer(hole, w, h, false)

	out := raster.New[float64](w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if hole.At(x, y) {
				d := negDist.At(x, y)
				if d >= inf {
					d = 0
				}
				out.Set(x, y, d)
			} else {
				d := posDist.At(x, y)
				if d >= inf {
					d = 0
				}
				out.Set(x, y, -d)
			}
		}
	}
	return out
}

// chamfer computes, for every pixel, the chamfer distance to the
// nearest pixel whose hole flag equals target.
func chamfer(hole *raster.Image[bool], w, h int, target bool) *raster.Image[float64] {
	const inf = 1e9
	dist := raster.New[float64](w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if hole.At(x, y) == target {
				dist.Set(x, y, 0)
			} else {
				dist.Set(x, y, inf)
			}
		}
	}

	const diag = 1.41421356237
	relax := func(x, y, nx, ny int, cost float64) {
		if nx < 0 || ny < 0 || nx >= w || ny >= h {
			return
		}
		cand := dist.At(nx, ny) + cost
		if cand < dist.At(x, y) {
			dist.Set(x, y, cand)
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			relax(x, y, x-1, y, 1)
			relax(x, y, x, y-1, 1)
			relax(x, y, x-1, y-1, diag)
			relax(x, y, x+1, y-1, diag)
		}
	}
	for y := h - 1; y >= 0; y-- {
		for x := w - 1; x >= 0; x-- {
			relax(x, y, x+1, y, 1)
			relax(x, y, x, y+1, 1)
			relax(x, y, x+1, y+1, diag)
			relax(x, y, x-1, y+1, diag)
		}
	}
	return dist
}

// UpsampleRGB nearest-neighbor resizes src up to width×height, used to
// carry a coarse level's blended target image forward as the starting
// point for the next, finer level (outside the hole the fresh
// Downsample of the original is preferred; this is only used to seed
// hole-region pixels, so resampling quality is secondary to having
// *something* plausible to refine).
func UpsampleRGB(src *raster.Image[raster.RGB], width, height int) *raster.Image[raster.RGB] {
	out := raster.New[raster.RGB](width, height)
	sw, sh := src.Width(), src.Height()
	for y := 0; y < height; y++ {
		sy := y * sh / height
		if sy >= sh {
			sy = sh - 1
		}
		for x := 0; x < width; x++ {
			sx := x * sw / width
			if sx >= sw {
				sx = sw - 1
			}
			out.Set(x, y, src.At(sx, sy))
		}
	}
	return out
}

// FullPatchStructuringElement returns the patchWidth×patchWidth
// all-true structuring element (and its center anchor) spec.md §3
// prescribes for building a level's source mask:
// sourceMask = complement(dilate(targetMask, fullPatchStructuringElement)).
func FullPatchStructuringElement(patchWidth int) (*raster.Image[bool], intcoord.Coord) {
	se := raster.NewFilled[bool](patchWidth, patchWidth, true)
	return se, intcoord.Coord{X: patchWidth / 2, Y: patchWidth / 2}
}

// Dilate grows the true region of source by structure, anchored at
// anchor within structure's own coordinate frame. Pixel (x, y) of the
// output is true iff some true structure cell (sx, sy) has
// source.At(x-sx+anchor.X, y-sy+anchor.Y) true. structure's
// dimensions must both be odd (ErrStructuringElementEven otherwise) —
// an even-dimensioned structuring element has no well-defined center,
// spec.md §7's InternalInvariantViolated case.
func Dilate(source *raster.Image[bool], structure *raster.Image[bool], anchor intcoord.Coord) (*raster.Image[bool], error) {
	if structure.Width()%2 == 0 || structure.Height()%2 == 0 {
		return nil, ErrStructuringElementEven
	}

	w, h := source.Width(), source.Height()
	sw, sh := structure.Width(), structure.Height()
	out := raster.New[bool](w, h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			mark := false
			for sx := 0; sx < sw && !mark; sx++ {
				for sy := 0; sy < sh; sy++ {
					if !structure.At(sx, sy) {
						continue
					}
					tx := x - sx + anchor.X
					ty := y - sy + anchor.Y
					if tx < 0 || ty < 0 || tx >= w || ty >= h {
						continue
					}
					if source.At(tx, ty) {
						mark = true
						break
					}
				}
			}
			out.Set(x, y, mark)
		}
	}
	return out, nil
}
