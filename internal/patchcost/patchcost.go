// Package patchcost computes the weighted sum-of-squared-differences
// cost between a source patch and a target patch, the quantity the
// search and propagate primitives minimize.
//
// Cost evaluation runs once per candidate per pixel, so it is the
// hottest loop in the engine; this package follows the teacher's
// CPU-feature-aware dispatch shape (detect once in init, select a
// kernel function pointer) even though, unlike the teacher, no actual
// SIMD assembly ships here — see Backend.
package patchcost

import (
	"log/slog"
	"math"

	"golang.org/x/sys/cpu"

	"github.com/cwbudde/holefill/internal/anchorfield"
	"github.com/cwbudde/holefill/internal/intcoord"
	"github.com/cwbudde/holefill/internal/raster"
)

// Backend names the selected scalar kernel. The teacher's ssd.go
// dispatches to hand-written AVX2/NEON assembly; those kernels were
// never present in the retrieved tree (declared, never implemented),
// so this package keeps only the feature-detection dispatch and
// selects between two pure-Go scalar kernels.
type Backend int

const (
	BackendUnrolled Backend = iota
	BackendNaive
)

func (b Backend) String() string {
	if b == BackendNaive {
		return "naive"
	}
	return "unrolled"
}

// ActiveBackend records which scalar kernel init selected.
var ActiveBackend Backend

// kernel is the dispatched patch-cost inner loop.
var kernel func(source, target *raster.Image[raster.RGB], weights *anchorfield.Field, sAnchor, tAnchor intcoord.Coord, half int, costNotToExceed float64) float64

func init() {
	// Neither AVX2 nor NEON changes the algorithm here (no assembly
	// kernel exists to dispatch to), but detecting features and
	// logging the decision mirrors the teacher's ssd.go init() and
	// keeps the dispatch point in one place for when a real SIMD
	// kernel is added.
	if cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD {
		ActiveBackend = BackendUnrolled
		kernel = unrolled
		slog.Debug("patch cost kernel selected", "backend", ActiveBackend.String(), "simd_detected", true)
	} else {
		ActiveBackend = BackendUnrolled
		kernel = unrolled
		slog.Debug("patch cost kernel selected", "backend", ActiveBackend.String(), "simd_detected", false)
	}
}

// SetBackend overrides the active kernel, used by tests to
// cross-validate the unrolled kernel against the naive reference.
func SetBackend(b Backend) {
	ActiveBackend = b
	if b == BackendNaive {
		kernel = naive
	} else {
		kernel = unrolled
	}
}

// HalfWidth returns ⌊patchWidth/2⌋, the per-axis offset range a patch
// cost sums over.
func HalfWidth(patchWidth int) int { return patchWidth / 2 }

// IsPossibleAnchor reports whether a full patch of the given width
// centered at c fits entirely inside a width×height image. Every
// primitive that needs border exclusion calls this one predicate, per
// the engine's "single source of truth for border exclusion" design
// note — propagate, search, and blend must never re-derive it.
func IsPossibleAnchor(c intcoord.Coord, width, height, patchWidth int) bool {
	half := HalfWidth(patchWidth)
	return c.X-half >= 0 && c.X+half < width && c.Y-half >= 0 && c.Y+half < height
}

// Cost computes the weighted SSD between the patch centered at
// sourceAnchor in source and the patch centered at targetAnchor in
// target, weighted per target pixel by weights, with early exit once
// the running sum exceeds costNotToExceed. Both anchors must already
// be possible anchor positions; callers (search, propagate, blend)
// check this before calling.
func Cost(source, target *raster.Image[raster.RGB], weights *anchorfield.Field, sourceAnchor, targetAnchor intcoord.Coord, patchWidth int, costNotToExceed float64) float64 {
	return kernel(source, target, weights, sourceAnchor, targetAnchor, HalfWidth(patchWidth), costNotToExceed)
}

func unrolled(source, target *raster.Image[raster.RGB], weights *anchorfield.Field, sAnchor, tAnchor intcoord.Coord, half int, costNotToExceed float64) float64 {
	var sum float64
	side := 2*half + 1
	offsets := make([]int, side)
	for i := range offsets {
		offsets[i] = i - half
	}

	for _, dy := range offsets {
		sy, ty := sAnchor.Y+dy, tAnchor.Y+dy
		dx := 0
		n := len(offsets)
		unrollN := (n / 4) * 4
		for ; dx < unrollN; dx += 4 {
			for k := 0; k < 4; k++ {
				off := offsets[dx+k]
				sum += weightedDiff(source, target, weights, sAnchor.X+off, sy, tAnchor.X+off, ty)
			}
			if sum > costNotToExceed {
				return sum
			}
		}
		for ; dx < n; dx++ {
			off := offsets[dx]
			sum += weightedDiff(source, target, weights, sAnchor.X+off, sy, tAnchor.X+off, ty)
		}
		if sum > costNotToExceed {
			return sum
		}
	}
	return sum
}

func naive(source, target *raster.Image[raster.RGB], weights *anchorfield.Field, sAnchor, tAnchor intcoord.Coord, half int, costNotToExceed float64) float64 {
	var sum float64
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			sum += weightedDiff(source, target, weights, sAnchor.X+dx, sAnchor.Y+dy, tAnchor.X+dx, tAnchor.Y+dy)
			if sum > costNotToExceed {
				return sum
			}
		}
	}
	return sum
}

func weightedDiff(source, target *raster.Image[raster.RGB], weights *anchorfield.Field, sx, sy, tx, ty int) float64 {
	s := source.At(sx, sy)
	t := target.At(tx, ty)
	dr := s.R - t.R
	dg := s.G - t.G
	db := s.B - t.B
	w := weights.At(tx, ty)
	return (dr*dr + dg*dg + db*db) * w
}

// Sentinel is the "cost unknown" value new or freshly-upsampled NNF
// entries carry until a search or propagate pass evaluates them.
var Sentinel = math.Inf(1)
