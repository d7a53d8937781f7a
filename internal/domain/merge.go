package domain

import (
	"fmt"
	"math"
)

// MergePolicy decides the output value where input rasters overlap.
type MergePolicy string

const (
	// MergeFirst keeps the first valid value in input order. The default:
	// deterministic given a fixed input ordering and cheapest to compute.
	MergeFirst MergePolicy = "first"
	// MergeLast overwrites with each later valid value in input order.
	MergeLast MergePolicy = "last"
	// MergeMean averages all valid values covering a cell.
	MergeMean MergePolicy = "mean"
	// MergeMax keeps the largest valid value covering a cell.
	MergeMax MergePolicy = "max"
)

// ParseMergePolicy validates a policy name from configuration.
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch MergePolicy(s) {
	case MergeFirst, MergeLast, MergeMean, MergeMax:
		return MergePolicy(s), nil
	}
	return "", fmt.Errorf("%w: unknown mosaic policy %q", ErrInvalidInput, s)
}

// Merge mosaics same-CRS rasters into one raster covering the union of their
// extents at the finest input resolution. Overlaps are resolved by policy;
// output is fully determined by the input order, so callers sort their inputs
// before merging. The first raster supplies the nodata value and band count.
func Merge(inputs []*Raster, policy MergePolicy) (*Raster, error) {
	if len(inputs) == 0 {
		return nil, ErrNoRastersFound
	}

	first := inputs[0]
	bands := len(first.Bands)
	bounds := first.Bounds()
	pw := math.Abs(first.Transform.PixelWidth)
	ph := math.Abs(first.Transform.PixelHeight)
	for _, r := range inputs[1:] {
		if r.CRS.Code != first.CRS.Code {
			return nil, fmt.Errorf("merge: mixed reference systems %s and %s", first.CRS, r.CRS)
		}
		if len(r.Bands) != bands {
			return nil, fmt.Errorf("merge: mixed band counts %d and %d", bands, len(r.Bands))
		}
		bounds = bounds.Union(r.Bounds())
		pw = min(pw, math.Abs(r.Transform.PixelWidth))
		ph = min(ph, math.Abs(r.Transform.PixelHeight))
	}

	width := int(math.Ceil((bounds.MaxX - bounds.MinX) / pw))
	height := int(math.Ceil((bounds.MaxY - bounds.MinY) / ph))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("merge: degenerate output grid %dx%d", width, height)
	}

	tf := Transform{OriginX: bounds.MinX, OriginY: bounds.MaxY, PixelWidth: pw, PixelHeight: -ph}
	out := NewRaster(width, height, bands, tf, first.CRS, first.NoData)

	var sums, counts [][]float64
	if policy == MergeMean {
		sums = make([][]float64, bands)
		counts = make([][]float64, bands)
		for b := range sums {
			sums[b] = make([]float64, width*height)
			counts[b] = make([]float64, width*height)
		}
	}

	for _, src := range inputs {
		blendInto(out, src, policy, sums, counts)
	}

	if policy == MergeMean {
		for b := range out.Bands {
			for i := range out.Bands[b] {
				if counts[b][i] > 0 {
					out.Bands[b][i] = float32(sums[b][i] / counts[b][i])
				}
			}
		}
	}
	return out, nil
}

// blendInto resamples src onto dst's grid (nearest neighbor; grids are aligned
// same-resolution tiles in practice) and applies the overlap policy.
func blendInto(dst, src *Raster, policy MergePolicy, sums, counts [][]float64) {
	// Walk destination cells covered by the source extent and pull values,
	// so finer destination grids never leave gaps inside a coarser source.
	sb := src.Bounds()
	c0, r0 := dst.Transform.Cell(sb.MinX, sb.MaxY)
	c1, r1 := dst.Transform.Cell(sb.MaxX, sb.MinY)
	colStart := clampInt(int(math.Floor(c0)), 0, dst.Width)
	rowStart := clampInt(int(math.Floor(r0)), 0, dst.Height)
	colEnd := clampInt(int(math.Ceil(c1)), 0, dst.Width)
	rowEnd := clampInt(int(math.Ceil(r1)), 0, dst.Height)

	for row := rowStart; row < rowEnd; row++ {
		for col := colStart; col < colEnd; col++ {
			x, y := dst.Transform.XY(float64(col)+0.5, float64(row)+0.5)
			sc, sr := src.Transform.Cell(x, y)
			scol, srow := int(math.Floor(sc)), int(math.Floor(sr))
			if scol < 0 || scol >= src.Width || srow < 0 || srow >= src.Height {
				continue
			}
			for b := range dst.Bands {
				v := src.At(b, scol, srow)
				if isNoData(v, src.NoData) {
					continue
				}
				idx := row*dst.Width + col
				switch policy {
				case MergeFirst:
					if isNoData(dst.Bands[b][idx], dst.NoData) {
						dst.Bands[b][idx] = v
					}
				case MergeLast:
					dst.Bands[b][idx] = v
				case MergeMax:
					if isNoData(dst.Bands[b][idx], dst.NoData) || v > dst.Bands[b][idx] {
						dst.Bands[b][idx] = v
					}
				case MergeMean:
					sums[b][idx] += float64(v)
					counts[b][idx]++
				}
			}
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
