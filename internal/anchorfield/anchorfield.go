// Package anchorfield builds the per-pixel weight field that the patch
// cost applies to each target pixel of a patch: pixels outside the hole
// and in the hole's rim count most, and pixels deep inside the hole
// count least, so matches are decided mainly by known structure.
package anchorfield

import (
	"math"

	"github.com/cwbudde/holefill/internal/raster"
)

// Field is a float64 grid of anchor weights, one per pixel.
type Field = raster.Image[float64]

// outsideHoleWeight is the constant weight assigned to every pixel
// outside the hole. It is large relative to the inside-hole weights so
// the patch cost kernel still accounts for outside contributions
// without letting them get swamped by a deep-hole pixel's near-zero
// weight.
const outsideHoleWeight = 100.0

// gamma is the base of the inside-hole geometric decay: weight falls
// off as gamma^(-depth) the deeper a pixel sits in the hole.
const gamma = 2.0

// Build derives an anchor-weight field from a signed distance map
// (positive inside the hole, negative outside it, as produced by
// pyramid.DistanceMap) and the patch width the field will be used
// with. Pixels outside the hole get a constant weight; pixels inside
// decay geometrically with depth, doubled within the "rim" band
// (depth in [0, patchWidth/2]) since those pixels still overlap
// enough known structure to be useful anchors.
func Build(distance *raster.Image[float64], patchWidth int) *Field {
	w, h := distance.Width(), distance.Height()
	out := raster.New[float64](w, h)
	overlapDist := float64(patchWidth) / 2

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d := distance.At(x, y)
			if d < 0 {
				// Outside the hole. Still given a weight because
				// outside pixels participate in the patch cost step.
				out.Set(x, y, outsideHoleWeight)
				continue
			}

			depth := d
			weight := math.Pow(gamma, -depth)
			if depth <= overlapDist {
				weight *= 2.0
			}
			out.Set(x, y, weight)
		}
	}
	return out
}
