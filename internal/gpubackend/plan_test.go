package gpubackend

import (
	"errors"
	"testing"

	"github.com/cwbudde/holefill/internal/raster"
)

func TestNewPlanRejectsBadPatchWidth(t *testing.T) {
	target := raster.New[raster.RGB](16, 16)
	mask := raster.New[bool](16, 16)
	if _, err := NewPlan(target, mask, 2, 4); err == nil {
		t.Error("expected error for even patch width")
	}
}

func TestNewPlanRejectsSizeMismatch(t *testing.T) {
	target := raster.New[raster.RGB](16, 16)
	mask := raster.New[bool](8, 8)
	if _, err := NewPlan(target, mask, 2, 3); err == nil {
		t.Error("expected error for target/mask size mismatch")
	}
}

// TestNewPlanUnavailableWithoutGPUTag exercises the stub runtime path:
// the default (non-"gpu"-tagged) build always reports the backend
// unavailable since no OpenCL device can be opened.
func TestNewPlanUnavailableWithoutGPUTag(t *testing.T) {
	target := raster.New[raster.RGB](16, 16)
	mask := raster.New[bool](16, 16)
	_, err := NewPlan(target, mask, 2, 3)
	if err == nil {
		t.Fatal("expected ErrResourceExhausted from the stub runtime")
	}
	if !errors.Is(err, ErrResourceExhausted) {
		t.Errorf("got %v, want ErrResourceExhausted", err)
	}
}

func TestPlanStepRejectsConsecutiveBlend(t *testing.T) {
	p := &Plan{}
	if err := p.PlanStep(Blend); err != nil {
		t.Fatalf("first Blend step: %v", err)
	}
	err := p.PlanStep(Blend)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for consecutive Blend steps, got %v", err)
	}
}

func TestExecuteStepsRequiresTrailingBlend(t *testing.T) {
	p := &Plan{}
	if err := p.PlanStep(Search); err != nil {
		t.Fatalf("PlanStep: %v", err)
	}
	out := raster.New[raster.RGB](1, 1)
	err := p.ExecuteSteps(out)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState when queue does not end in Blend, got %v", err)
	}
}

func TestQueuedReportsPendingSteps(t *testing.T) {
	p := &Plan{}
	p.PlanStep(Search)
	p.PlanStep(Propagate)
	queued := p.Queued()
	if len(queued) != 2 || queued[0] != Search || queued[1] != Propagate {
		t.Errorf("Queued() = %v, want [Search Propagate]", queued)
	}
}

func TestStepTagString(t *testing.T) {
	cases := map[StepTag]string{
		NextPyramid: "NextPyramid",
		Search:      "Search",
		Propagate:   "Propagate",
		Blend:       "Blend",
	}
	for tag, want := range cases {
		if got := tag.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", tag, got, want)
		}
	}
}

func TestEnumerateDevicesUnavailableWithoutGPUTag(t *testing.T) {
	_, err := EnumerateDevices()
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}
