package domain

import (
	"fmt"
	"math"
)

// Clip crops r to the minimal pixel window containing the mask polygons and
// sets every pixel inside that window but outside the polygons to nodata. The
// mask is reprojected into the raster's reference system first, so the
// polygon test always runs in raster coordinates.
func Clip(r *Raster, mask Mask) (*Raster, error) {
	m, err := mask.To(r.CRS)
	if err != nil {
		return nil, err
	}

	window, ok := r.Bounds().Intersect(m.Bound())
	if !ok {
		return nil, fmt.Errorf("%w: mask does not intersect raster extent", ErrInvalidInput)
	}

	// Snap the window outward to whole pixels of the source grid.
	c0, r0 := r.Transform.Cell(window.MinX, window.MaxY)
	c1, r1 := r.Transform.Cell(window.MaxX, window.MinY)
	colStart := clampInt(int(math.Floor(c0)), 0, r.Width)
	rowStart := clampInt(int(math.Floor(r0)), 0, r.Height)
	colEnd := clampInt(int(math.Ceil(c1)), 0, r.Width)
	rowEnd := clampInt(int(math.Ceil(r1)), 0, r.Height)
	width := colEnd - colStart
	height := rowEnd - rowStart
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: mask does not intersect raster extent", ErrInvalidInput)
	}

	ox, oy := r.Transform.XY(float64(colStart), float64(rowStart))
	tf := Transform{
		OriginX:     ox,
		OriginY:     oy,
		PixelWidth:  r.Transform.PixelWidth,
		PixelHeight: r.Transform.PixelHeight,
	}
	out := NewRaster(width, height, len(r.Bands), tf, r.CRS, r.NoData)

	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			x, y := tf.XY(float64(col)+0.5, float64(row)+0.5)
			if !m.Contains(x, y) {
				continue
			}
			for b := range out.Bands {
				out.Set(b, col, row, r.At(b, colStart+col, rowStart+row))
			}
		}
	}
	return out, nil
}
