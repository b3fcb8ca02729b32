package main

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/holefill/internal/checkpoint"
	"github.com/cwbudde/holefill/internal/engine"
	"github.com/cwbudde/holefill/internal/holefile"
	"github.com/cwbudde/holefill/internal/raster"
)

var (
	fillRefPath       string
	fillHolePath      string
	fillOutPath       string
	fillPatchWidth    int
	fillNumLevels     int
	fillBackend       string
	fillPropagation   string
	fillSeed          uint64
	fillCheckpointDir string
	fillConfigPath    string
)

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Fill a masked hole region of an image using PatchMatch",
	RunE:  runFill,
}

func init() {
	fillCmd.Flags().StringVar(&fillRefPath, "ref", "", "Reference image path, the image with a hole to fill (required)")
	fillCmd.Flags().StringVar(&fillHolePath, "hole", "", "Hole-mask file path, as written by this tool's hole-mask codec (required)")
	fillCmd.Flags().StringVar(&fillOutPath, "out", "out.png", "Output image path")
	fillCmd.Flags().IntVar(&fillPatchWidth, "patch", 7, "Patch width, an odd integer in [3, 50]")
	fillCmd.Flags().IntVar(&fillNumLevels, "levels", 6, "Number of pyramid levels")
	fillCmd.Flags().StringVar(&fillBackend, "backend", "cpu", "Backend: cpu or gpu")
	fillCmd.Flags().StringVar(&fillPropagation, "propagation", "line", "Propagation variant: line or jumpflood")
	fillCmd.Flags().Uint64Var(&fillSeed, "seed", 42, "Seed recorded in the checkpoint config; the fill itself does not read it (the CPU back end always seeds with 42)")
	fillCmd.Flags().StringVar(&fillCheckpointDir, "checkpoint-dir", "", "Directory to save a progress checkpoint to after the run (optional)")
	fillCmd.Flags().StringVar(&fillConfigPath, "config", "", "Optional YAML config file; explicit flags override its fields")

	fillCmd.MarkFlagRequired("ref")
	fillCmd.MarkFlagRequired("hole")
	rootCmd.AddCommand(fillCmd)
}

func runFill(cmd *cobra.Command, args []string) error {
	cfg, err := resolveFillConfig(cmd)
	if err != nil {
		return err
	}

	img, err := loadImage(fillRefPath)
	if err != nil {
		return fmt.Errorf("load reference image: %w", err)
	}
	slog.Info("loaded reference image", "path", fillRefPath, "width", img.Width(), "height", img.Height())

	mask, err := loadHoleMask(fillHolePath)
	if err != nil {
		return fmt.Errorf("load hole mask: %w", err)
	}

	eng, err := engine.New(cfg, img, img, mask)
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}

	start := time.Now()
	var lastCost float64
	out, err := eng.Run(func(level, round int, meanCost float64) {
		lastCost = meanCost
		slog.Debug("fill round complete", "level", level, "round", round, "mean_cost", meanCost)
	})
	if err != nil {
		return fmt.Errorf("run fill: %w", err)
	}
	elapsed := time.Since(start)

	if err := saveImage(fillOutPath, out); err != nil {
		return fmt.Errorf("write output image: %w", err)
	}

	slog.Info("fill complete", "elapsed", elapsed, "final_mean_cost", lastCost, "out", fillOutPath)
	fmt.Printf("Wrote %s (elapsed %s, final mean cost %.4f)\n", fillOutPath, elapsed, lastCost)

	if fillCheckpointDir != "" {
		if err := saveCheckpoint(eng, fillCheckpointDir); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
	}
	return nil
}

func resolveFillConfig(cmd *cobra.Command) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if fillConfigPath != "" {
		loaded, err := engine.LoadConfigFile(fillConfigPath)
		if err != nil {
			return engine.Config{}, fmt.Errorf("load config file: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("patch") {
		cfg.PatchWidth = fillPatchWidth
	}
	if flags.Changed("levels") {
		cfg.NumLevels = fillNumLevels
	}
	if flags.Changed("backend") {
		cfg.Backend = engine.BackendName(fillBackend)
	}
	if flags.Changed("propagation") {
		cfg.Propagation = fillPropagation
	}
	if flags.Changed("seed") {
		cfg.Seed = fillSeed
	}

	if err := cfg.Validate(); err != nil {
		return engine.Config{}, err
	}
	return cfg, nil
}

func loadImage(path string) (*raster.Image[raster.RGB], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return imageToRaster(img), nil
}

func imageToRaster(img image.Image) *raster.Image[raster.RGB] {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := raster.New[raster.RGB](w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			out.Set(x, y, raster.RGB{
				R: float64(r) / 65535,
				G: float64(g) / 65535,
				B: float64(b) / 65535,
			})
		}
	}
	return out
}

func clampToNRGBA(c raster.RGB) color.NRGBA {
	clamp := func(v float64) uint8 {
		if v <= 0 {
			return 0
		}
		if v >= 1 {
			return 255
		}
		return uint8(v*255 + 0.5)
	}
	return color.NRGBA{R: clamp(c.R), G: clamp(c.G), B: clamp(c.B), A: 255}
}

func saveImage(path string, img *raster.Image[raster.RGB]) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, h := img.Width(), img.Height()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.SetNRGBA(x, y, clampToNRGBA(img.At(x, y)))
		}
	}
	return png.Encode(f, out)
}

func loadHoleMask(path string) (*raster.Image[bool], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return holefile.Read(f)
}

func saveCheckpoint(eng *engine.Engine, dir string) error {
	store, err := checkpoint.NewFSStore(dir)
	if err != nil {
		return err
	}
	jobID := filepath.Base(fillRefPath)
	ckpt, err := eng.Checkpoint(jobID)
	if err != nil {
		return err
	}
	ckpt.Timestamp = time.Now()
	return store.SaveCheckpoint(ckpt)
}
