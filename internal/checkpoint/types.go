// Package checkpoint implements the optional fill-progress
// checkpoint and JSONL round trace that SPEC_FULL.md §4.16 adds to
// the distilled spec: the original engine holds NNF state only in
// memory, but a multi-level PatchMatch fill on a large image can run
// for minutes, and a host application may want to resume one. This is
// an opt-in library feature; the core's synchronous primitive API is
// unaffected when no store is configured.
package checkpoint

import (
	"fmt"
	"time"

	"github.com/cwbudde/holefill/internal/intcoord"
	"github.com/cwbudde/holefill/internal/raster"
)

// Config mirrors the engine parameters a resumed run must match,
// directly adapted from the teacher's store.JobConfig.
type Config struct {
	PatchWidth  int    `json:"patchWidth"`
	NumLevels   int    `json:"numLevels"`
	Propagation string `json:"propagation"` // "line" or "jumpflood"
	Seed        uint64 `json:"seed"`
	Backend     string `json:"backend"` // "cpu" or "gpu"
}

// FieldSnapshot is a checkpoint-serializable copy of an nnf.Field,
// decoupled from the live raster.Image backing arrays.
type FieldSnapshot struct {
	Width, Height int
	Coords        []intcoord.Coord
	Costs         []float64
}

// Checkpoint captures one fill's progress: which pyramid level and
// round it reached, the NNF state at that point, and the config
// needed to validate a resume attempt.
type Checkpoint struct {
	JobID        string        `json:"jobId"`
	PyramidLevel int           `json:"pyramidLevel"`
	Round        int           `json:"round"`
	Field        FieldSnapshot `json:"field"`
	Config       Config        `json:"config"`
	Timestamp    time.Time     `json:"timestamp"`
}

// CheckpointInfo is checkpoint metadata without the (potentially
// large) NNF snapshot, used for listing.
type CheckpointInfo struct {
	JobID        string    `json:"jobId"`
	PyramidLevel int       `json:"pyramidLevel"`
	Round        int       `json:"round"`
	Timestamp    time.Time `json:"timestamp"`
	Backend      string    `json:"backend"`
}

func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		JobID:        c.JobID,
		PyramidLevel: c.PyramidLevel,
		Round:        c.Round,
		Timestamp:    c.Timestamp,
		Backend:      c.Config.Backend,
	}
}

// ValidationError reports a malformed checkpoint field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "checkpoint validation error: " + e.Field + " " + e.Reason
}

// Validate checks that the checkpoint carries the minimum fields a
// resume attempt needs.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if c.Field.Width <= 0 || c.Field.Height <= 0 {
		return &ValidationError{Field: "Field", Reason: "width/height must be positive"}
	}
	if len(c.Field.Coords) != c.Field.Width*c.Field.Height {
		return &ValidationError{Field: "Field.Coords", Reason: "length does not match width*height"}
	}
	if len(c.Field.Costs) != c.Field.Width*c.Field.Height {
		return &ValidationError{Field: "Field.Costs", Reason: "length does not match width*height"}
	}
	if c.Config.PatchWidth < 3 {
		return &ValidationError{Field: "Config.PatchWidth", Reason: "must be >= 3"}
	}
	return nil
}

// CompatibilityError reports a mismatch between a checkpoint's config
// and the config a resume attempt wants to use.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "checkpoint compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}

// IsCompatible reports whether cfg may resume from c.
func (c *Checkpoint) IsCompatible(cfg Config) error {
	if c.Config.PatchWidth != cfg.PatchWidth {
		return &CompatibilityError{Field: "PatchWidth", Expected: fmt.Sprintf("%d", c.Config.PatchWidth), Actual: fmt.Sprintf("%d", cfg.PatchWidth)}
	}
	if c.Config.NumLevels != cfg.NumLevels {
		return &CompatibilityError{Field: "NumLevels", Expected: fmt.Sprintf("%d", c.Config.NumLevels), Actual: fmt.Sprintf("%d", cfg.NumLevels)}
	}
	return nil
}

// SnapshotField copies coords/costs out of the live NNF images.
func SnapshotField(coords *raster.Image[intcoord.Coord], costs *raster.Image[float64]) FieldSnapshot {
	return FieldSnapshot{
		Width:  coords.Width(),
		Height: coords.Height(),
		Coords: coords.Pixels(),
		Costs:  costs.Pixels(),
	}
}

// Restore rebuilds live NNF images from a snapshot.
func (s FieldSnapshot) Restore() (coords *raster.Image[intcoord.Coord], costs *raster.Image[float64]) {
	return raster.FromPixels(s.Width, s.Height, s.Coords), raster.FromPixels(s.Width, s.Height, s.Costs)
}
