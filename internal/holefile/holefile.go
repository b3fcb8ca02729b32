// Package holefile implements the hole-mask byte-stream codec spec.md
// §6 "Persisted state" specifies: a compact serialization of an
// Image[bool] as int32 width, int32 height, then width*height bytes
// in row-major order (one byte per pixel rather than packed bits, the
// implementation's choice the spec explicitly leaves open).
//
// File-format decoding for the input *image* is an external
// collaborator's job per spec.md §1; this package only covers the
// hole mask, which the core itself must be able to round-trip for
// scenario 6 in spec.md §8.
package holefile

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cwbudde/holefill/internal/raster"
)

// Write serializes mask to w as int32 width, int32 height, then one
// byte per pixel in row-major order (0 = false, 1 = true).
func Write(w io.Writer, mask *raster.Image[bool]) error {
	width, height := mask.Width(), mask.Height()
	if err := binary.Write(w, binary.BigEndian, int32(width)); err != nil {
		return fmt.Errorf("holefile: write width: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, int32(height)); err != nil {
		return fmt.Errorf("holefile: write height: %w", err)
	}

	buf := make([]byte, width)
	for y := 0; y < height; y++ {
		row := mask.Row(y)
		for x, v := range row {
			if v {
				buf[x] = 1
			} else {
				buf[x] = 0
			}
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("holefile: write row %d: %w", y, err)
		}
	}
	return nil
}

// Read deserializes a mask previously written by Write.
func Read(r io.Reader) (*raster.Image[bool], error) {
	var width, height int32
	if err := binary.Read(r, binary.BigEndian, &width); err != nil {
		return nil, fmt.Errorf("holefile: read width: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &height); err != nil {
		return nil, fmt.Errorf("holefile: read height: %w", err)
	}
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("holefile: negative dimensions %dx%d", width, height)
	}

	mask := raster.New[bool](int(width), int(height))
	buf := make([]byte, width)
	for y := 0; y < int(height); y++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("holefile: read row %d: %w", y, err)
		}
		for x, b := range buf {
			mask.Set(x, y, b != 0)
		}
	}
	return mask, nil
}
