package pyramid

import (
	"testing"

	"github.com/cwbudde/holefill/internal/intcoord"
	"github.com/cwbudde/holefill/internal/raster"
)

func TestBuildPlanCoarsestFirst(t *testing.T) {
	orig := Size{Width: 64, Height: 64}
	levels, err := BuildPlan(3, 7, orig, orig)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(levels))
	}
	last := levels[len(levels)-1]
	if last.Target.Width != 64 || last.Target.Height != 64 {
		t.Errorf("finest level = %+v, want 64x64", last.Target)
	}
	for i := 1; i < len(levels); i++ {
		if levels[i].Target.Width < levels[i-1].Target.Width {
			t.Errorf("levels must be non-decreasing in size going finer: %+v then %+v", levels[i-1], levels[i])
		}
	}
}

func TestBuildPlanCoarsestMeetsPatchWidth(t *testing.T) {
	orig := Size{Width: 64, Height: 64}
	levels, err := BuildPlan(5, 7, orig, orig)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	coarsest := levels[0]
	if coarsest.Target.Width < 7 || coarsest.Target.Height < 7 {
		t.Errorf("coarsest target level %+v must be >= patch width 7", coarsest.Target)
	}
	if coarsest.Source.Width < 7 || coarsest.Source.Height < 7 {
		t.Errorf("coarsest source level %+v must be >= patch width 7", coarsest.Source)
	}
}

func TestBuildPlanRejectsBadInput(t *testing.T) {
	orig := Size{Width: 64, Height: 64}
	if _, err := BuildPlan(0, 7, orig, orig); err == nil {
		t.Error("expected error for zero numLevels")
	}
	if _, err := BuildPlan(3, 0, orig, orig); err == nil {
		t.Error("expected error for zero patch width")
	}
	if _, err := BuildPlan(3, 8, orig, orig); err == nil {
		t.Error("expected error for even patch width")
	}
	tiny := Size{Width: 4, Height: 4}
	if _, err := BuildPlan(3, 7, tiny, tiny); err == nil {
		t.Error("expected error when an original dimension is smaller than the patch width")
	}
}

func TestLevelSizesLevelZeroIsOriginal(t *testing.T) {
	target := Size{Width: 64, Height: 48}
	source := Size{Width: 80, Height: 80}
	gotTarget, gotSource, err := LevelSizes(0, 3, 7, target, source)
	if err != nil {
		t.Fatalf("LevelSizes: %v", err)
	}
	if gotTarget != target || gotSource != source {
		t.Errorf("level 0 = (%+v, %+v), want originals (%+v, %+v)", gotTarget, gotSource, target, source)
	}
}

func TestDownsampleAverages(t *testing.T) {
	src := raster.New[raster.RGB](4, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.Set(x, y, raster.RGB{R: float64(x) / 4, G: 0, B: 0})
		}
	}
	out := Downsample(src, 2, 2)
	if out.Width() != 2 || out.Height() != 2 {
		t.Fatalf("unexpected output size %dx%d", out.Width(), out.Height())
	}
	if got := out.At(0, 0).R; got != 0.125 {
		t.Errorf("out(0,0).R = %v, want 0.125 (mean of 0 and 0.25)", got)
	}
	if got := out.At(1, 0).R; got != 0.625 {
		t.Errorf("out(1,0).R = %v, want 0.625 (mean of 0.5 and 0.75)", got)
	}
}

func TestDownsampleBoolOrPrevails(t *testing.T) {
	src := raster.New[bool](4, 4)
	src.Set(0, 0, true)

	out := DownsampleBool(src, 2, 2, true)
	if !out.At(0, 0) {
		t.Error("block with any true pixel must downsample to true when truesPrevail")
	}
	if out.At(1, 1) {
		t.Error("block with no true pixels must downsample to false")
	}
}

func TestDownsampleBoolAndPrevails(t *testing.T) {
	src := raster.NewFilled[bool](4, 4, true)
	src.Set(0, 0, false)

	out := DownsampleBool(src, 2, 2, false)
	if out.At(0, 0) {
		t.Error("block with any false pixel must downsample to false when !truesPrevail")
	}
	if !out.At(1, 1) {
		t.Error("all-true block must downsample to true")
	}
}

func TestDistanceMapSign(t *testing.T) {
	hole := raster.New[bool](5, 1)
	hole.Set(2, 0, true)
	dm := DistanceMap(hole)
	if dm.At(2, 0) <= 0 {
		t.Errorf("hole pixel distance should be positive, got %v", dm.At(2, 0))
	}
	if dm.At(0, 0) >= 0 {
		t.Errorf("non-hole pixel distance should be negative, got %v", dm.At(0, 0))
	}
}

func TestFullPatchStructuringElementShape(t *testing.T) {
	se, anchor := FullPatchStructuringElement(5)
	if se.Width() != 5 || se.Height() != 5 {
		t.Fatalf("structuring element size = %dx%d, want 5x5", se.Width(), se.Height())
	}
	if anchor.X != 2 || anchor.Y != 2 {
		t.Errorf("anchor = %+v, want center (2,2)", anchor)
	}
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			if !se.At(x, y) {
				t.Fatalf("structuring element must be all-true, (%d,%d) is false", x, y)
			}
		}
	}
}

func TestDilateRejectsEvenStructure(t *testing.T) {
	mask := raster.New[bool](5, 5)
	even := raster.NewFilled[bool](4, 4, true)
	if _, err := Dilate(mask, even, intcoord.Coord{X: 2, Y: 2}); err == nil {
		t.Error("expected ErrStructuringElementEven for an even-dimensioned structuring element")
	}
}

func TestDilateGrowsByHalfStructureWidth(t *testing.T) {
	mask := raster.New[bool](9, 9)
	mask.Set(4, 4, true)

	se, anchor := FullPatchStructuringElement(3)
	out, err := Dilate(mask, se, anchor)
	if err != nil {
		t.Fatalf("Dilate: %v", err)
	}
	for y := 3; y <= 5; y++ {
		for x := 3; x <= 5; x++ {
			if !out.At(x, y) {
				t.Errorf("expected (%d,%d) to be set by a 3x3 dilation of a single true pixel at (4,4)", x, y)
			}
		}
	}
	if out.At(2, 4) || out.At(6, 4) {
		t.Error("3x3 dilation must not reach two pixels away")
	}
}

func TestDilateIdentityForSinglePixelStructure(t *testing.T) {
	mask := raster.New[bool](3, 3)
	mask.Set(1, 1, true)
	se, anchor := FullPatchStructuringElement(1)
	out, err := Dilate(mask, se, anchor)
	if err != nil {
		t.Fatalf("Dilate: %v", err)
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			if out.At(x, y) != mask.At(x, y) {
				t.Errorf("1x1 structuring element dilation must be identity, mismatch at (%d,%d)", x, y)
			}
		}
	}
}
