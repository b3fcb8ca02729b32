package engine

import (
	"errors"
	"testing"

	"github.com/cwbudde/holefill/internal/raster"
)

func solidImage(size int, c raster.RGB) *raster.Image[raster.RGB] {
	return raster.NewFilled[raster.RGB](size, size, c)
}

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig() should validate, got %v", err)
	}
}

func TestValidateRejectsBadPatchWidth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PatchWidth = 4
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestValidateRejectsUnknownPropagation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Propagation = "diagonal"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "quantum"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNewCPUEngineRunsToCompletion(t *testing.T) {
	const size = 20
	img := solidImage(size, raster.RGB{R: 0.1, G: 0.2, B: 0.3})
	mask := raster.New[bool](size, size)
	for y := 8; y < 12; y++ {
		for x := 8; x < 12; x++ {
			mask.Set(x, y, true)
		}
	}

	cfg := DefaultConfig()
	cfg.PatchWidth = 5
	cfg.NumLevels = 2
	cfg.CoarsestSearchPropagatePerBlend = 1
	cfg.CoarsestBlends = 1
	cfg.FinerSearchPropagatePerBlend = 1
	cfg.FinerBlends = 1

	eng, err := New(cfg, img, img, mask)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var rounds int
	out, err := eng.Run(func(level, round int, meanCost float64) {
		rounds++
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Width() != size || out.Height() != size {
		t.Errorf("output size = %dx%d, want %dx%d", out.Width(), out.Height(), size, size)
	}
	if rounds == 0 {
		t.Error("progress callback was never invoked")
	}

	ckpt, err := eng.Checkpoint("job-x")
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if ckpt.JobID != "job-x" {
		t.Errorf("checkpoint JobID = %q, want job-x", ckpt.JobID)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	img := solidImage(16, raster.RGB{R: 0.5})
	mask := raster.New[bool](16, 16)
	cfg := DefaultConfig()
	cfg.PatchWidth = 4
	if _, err := New(cfg, img, img, mask); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestGPUBackendUnavailableWithoutTag(t *testing.T) {
	img := solidImage(16, raster.RGB{R: 0.5})
	mask := raster.New[bool](16, 16)
	cfg := DefaultConfig()
	cfg.Backend = BackendGPU
	cfg.PatchWidth = 3
	cfg.NumLevels = 1
	_, err := New(cfg, img, img, mask)
	if !errors.Is(err, ErrResourceExhausted) {
		t.Errorf("expected ErrResourceExhausted, got %v", err)
	}
}
