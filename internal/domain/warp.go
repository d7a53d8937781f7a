package domain

import (
	"fmt"
	"math"
)

// Resampling selects the pixel interpolation used by Reproject.
type Resampling string

const (
	// ResampleNearest takes the nearest source pixel. Use for categorical
	// rasters or when elevation values must survive untouched.
	ResampleNearest Resampling = "nearest"
	// ResampleBilinear blends the four surrounding source pixels. The
	// default for continuous surfaces such as DEMs.
	ResampleBilinear Resampling = "bilinear"
)

// ParseResampling validates a resampling name from configuration.
func ParseResampling(s string) (Resampling, error) {
	switch Resampling(s) {
	case ResampleNearest, ResampleBilinear:
		return Resampling(s), nil
	}
	return "", fmt.Errorf("%w: unknown resampling kind %q", ErrInvalidInput, s)
}

// edgeSamples is the number of points sampled along each raster edge when
// estimating the reprojected extent. Curved edges in the target system bow
// outside the projected corners, so corners alone under-estimate the bound.
const edgeSamples = 21

// Reproject resamples r into the target reference system. The destination
// grid keeps the source pixel counts and covers the best-fit bound of the
// reprojected source extent, so ground resolution is preserved as closely as
// the two systems allow. Every band is resampled with the same kind. The
// result is fully determined by the inputs.
func Reproject(r *Raster, target CRS, kind Resampling) (*Raster, error) {
	if r.CRS.Code == target.Code {
		return r, nil
	}
	tr, err := NewCoordTransformer(r.CRS, target)
	if err != nil {
		return nil, err
	}

	bounds := projectedBound(r, tr)
	width, height := r.Width, r.Height
	tf := Transform{
		OriginX:     bounds.MinX,
		OriginY:     bounds.MaxY,
		PixelWidth:  (bounds.MaxX - bounds.MinX) / float64(width),
		PixelHeight: -(bounds.MaxY - bounds.MinY) / float64(height),
	}
	out := NewRaster(width, height, len(r.Bands), tf, target, r.NoData)

	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			x, y := tf.XY(float64(col)+0.5, float64(row)+0.5)
			sx, sy := tr.Inverse(x, y)
			sc, sr := r.Transform.Cell(sx, sy)
			for b := range out.Bands {
				var v float32
				var ok bool
				switch kind {
				case ResampleBilinear:
					v, ok = sampleBilinear(r, b, sc-0.5, sr-0.5)
				default:
					v, ok = sampleNearest(r, b, sc, sr)
				}
				if ok {
					out.Set(b, col, row, v)
				}
			}
		}
	}
	return out, nil
}

// projectedBound transforms densified edge points of the source extent into
// the target system and returns their envelope.
func projectedBound(r *Raster, tr *CoordTransformer) Bound {
	b := r.Bounds()
	out := Bound{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	step := 1.0 / float64(edgeSamples-1)
	for i := 0; i < edgeSamples; i++ {
		f := float64(i) * step
		pts := [4][2]float64{
			{b.MinX + f*(b.MaxX-b.MinX), b.MinY}, // south edge
			{b.MinX + f*(b.MaxX-b.MinX), b.MaxY}, // north edge
			{b.MinX, b.MinY + f*(b.MaxY-b.MinY)}, // west edge
			{b.MaxX, b.MinY + f*(b.MaxY-b.MinY)}, // east edge
		}
		for _, p := range pts {
			x, y := tr.Transform(p[0], p[1])
			out.MinX = min(out.MinX, x)
			out.MinY = min(out.MinY, y)
			out.MaxX = max(out.MaxX, x)
			out.MaxY = max(out.MaxY, y)
		}
	}
	return out
}

func sampleNearest(r *Raster, band int, col, row float64) (float32, bool) {
	c, rw := int(math.Floor(col)), int(math.Floor(row))
	if c < 0 || c >= r.Width || rw < 0 || rw >= r.Height {
		return 0, false
	}
	v := r.At(band, c, rw)
	if isNoData(v, r.NoData) {
		return 0, false
	}
	return v, true
}

// sampleBilinear interpolates between the four pixel centers surrounding
// (col, row), ignoring nodata neighbors. Falls back to nearest when only
// some neighbors are valid so nodata never bleeds into the surface.
func sampleBilinear(r *Raster, band int, col, row float64) (float32, bool) {
	c0 := int(math.Floor(col))
	r0 := int(math.Floor(row))
	fc := col - float64(c0)
	fr := row - float64(r0)

	var sum, weight float64
	for dr := 0; dr <= 1; dr++ {
		for dc := 0; dc <= 1; dc++ {
			c, rw := c0+dc, r0+dr
			if c < 0 || c >= r.Width || rw < 0 || rw >= r.Height {
				continue
			}
			v := r.At(band, c, rw)
			if isNoData(v, r.NoData) {
				continue
			}
			wc := 1 - fc
			if dc == 1 {
				wc = fc
			}
			wr := 1 - fr
			if dr == 1 {
				wr = fr
			}
			sum += float64(v) * wc * wr
			weight += wc * wr
		}
	}
	if weight == 0 {
		return sampleNearest(r, band, col+0.5, row+0.5)
	}
	return float32(sum / weight), true
}
