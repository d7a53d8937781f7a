package domain

import "math"

// Transform is an affine pixel-to-world mapping with no rotation terms,
// matching the GeoTIFF ModelPixelScale + ModelTiepoint convention. OriginX and
// OriginY locate the outer corner of pixel (0,0); PixelHeight is negative for
// north-up rasters.
type Transform struct {
	OriginX     float64
	OriginY     float64
	PixelWidth  float64
	PixelHeight float64
}

// XY maps fractional pixel coordinates to world coordinates. Passing
// col+0.5, row+0.5 yields the center of pixel (col, row).
func (t Transform) XY(col, row float64) (x, y float64) {
	return t.OriginX + col*t.PixelWidth, t.OriginY + row*t.PixelHeight
}

// Cell is the inverse of XY: world coordinates to fractional pixel coordinates.
func (t Transform) Cell(x, y float64) (col, row float64) {
	return (x - t.OriginX) / t.PixelWidth, (y - t.OriginY) / t.PixelHeight
}

// Bound is a world-coordinate bounding box.
type Bound struct {
	MinX, MinY, MaxX, MaxY float64
}

// Union returns the smallest bound containing both b and other.
func (b Bound) Union(other Bound) Bound {
	return Bound{
		MinX: min(b.MinX, other.MinX),
		MinY: min(b.MinY, other.MinY),
		MaxX: max(b.MaxX, other.MaxX),
		MaxY: max(b.MaxY, other.MaxY),
	}
}

// Intersect returns the overlap of b and other and whether it is non-empty.
func (b Bound) Intersect(other Bound) (Bound, bool) {
	out := Bound{
		MinX: max(b.MinX, other.MinX),
		MinY: max(b.MinY, other.MinY),
		MaxX: min(b.MaxX, other.MaxX),
		MaxY: min(b.MaxY, other.MaxY),
	}
	return out, out.MinX < out.MaxX && out.MinY < out.MaxY
}

// Raster is an in-memory pixel grid with georeferencing. Each engine stage
// (merge, clip, reproject) produces a new Raster; nothing mutates one in place
// except Scale. Band data is row-major, one slice per band.
type Raster struct {
	Width, Height int
	Bands         [][]float32
	Transform     Transform
	CRS           CRS
	NoData        float32
}

// NewRaster allocates a raster of the given shape with every pixel set to nodata.
func NewRaster(width, height, bands int, tf Transform, crs CRS, nodata float32) *Raster {
	r := &Raster{
		Width:     width,
		Height:    height,
		Bands:     make([][]float32, bands),
		Transform: tf,
		CRS:       crs,
		NoData:    nodata,
	}
	for b := range r.Bands {
		data := make([]float32, width*height)
		if nodata != 0 {
			for i := range data {
				data[i] = nodata
			}
		}
		r.Bands[b] = data
	}
	return r
}

// At returns the value of band b at (col, row). No bounds checking.
func (r *Raster) At(b, col, row int) float32 {
	return r.Bands[b][row*r.Width+col]
}

// Set writes the value of band b at (col, row). No bounds checking.
func (r *Raster) Set(b, col, row int, v float32) {
	r.Bands[b][row*r.Width+col] = v
}

// Valid reports whether the value of band b at (col, row) is a measurement,
// i.e. not the nodata sentinel.
func (r *Raster) Valid(b, col, row int) bool {
	return !isNoData(r.At(b, col, row), r.NoData)
}

// isNoData reports whether v matches the nodata sentinel. NaN sentinels are
// common in float32 DEM tiles and never compare equal to themselves, so they
// need an explicit check.
func isNoData(v, sentinel float32) bool {
	if math.IsNaN(float64(sentinel)) {
		return math.IsNaN(float64(v))
	}
	return v == sentinel
}

// Bounds returns the raster's extent in world coordinates.
func (r *Raster) Bounds() Bound {
	x0, y0 := r.Transform.XY(0, 0)
	x1, y1 := r.Transform.XY(float64(r.Width), float64(r.Height))
	return Bound{
		MinX: min(x0, x1),
		MinY: min(y0, y1),
		MaxX: max(x0, x1),
		MaxY: max(y0, y1),
	}
}

// Scale multiplies every valid pixel by factor, in place. Used for vertical
// unit conversion (meters to feet). Nodata pixels are left untouched.
func (r *Raster) Scale(factor float64) {
	if factor == 1 {
		return
	}
	for b := range r.Bands {
		data := r.Bands[b]
		for i, v := range data {
			if !isNoData(v, r.NoData) {
				data[i] = float32(float64(v) * factor)
			}
		}
	}
}
