package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CRS identifies a coordinate reference system by EPSG code.
type CRS struct {
	Code int
}

// ParseCRS parses an "EPSG:<code>" identifier (case-insensitive, optional
// whitespace around the code). Unknown or unsupported codes are rejected with
// ErrInvalidInput so the caller can report a 4xx-equivalent.
func ParseCRS(s string) (CRS, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return CRS{}, fmt.Errorf("%w: empty CRS identifier", ErrInvalidInput)
	}
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "EPSG:") {
		return CRS{}, fmt.Errorf("%w: CRS %q is not of the form EPSG:<code>", ErrInvalidInput, s)
	}
	code, err := strconv.Atoi(strings.TrimSpace(upper[len("EPSG:"):]))
	if err != nil {
		return CRS{}, fmt.Errorf("%w: CRS %q has a non-numeric code", ErrInvalidInput, s)
	}
	crs := CRS{Code: code}
	if _, err := crs.projection(); err != nil {
		return CRS{}, err
	}
	return crs, nil
}

func (c CRS) String() string {
	return fmt.Sprintf("EPSG:%d", c.Code)
}

// IsGeographic reports whether coordinates in this CRS are degrees.
func (c CRS) IsGeographic() bool {
	p, err := c.projection()
	if err != nil {
		return false
	}
	_, geographic := p.(geographic)
	return geographic
}

// projection resolves the map projection for this CRS from the built-in
// registry: geographic (4326, 4269), Web Mercator (3857), WGS84 and NAD83 UTM
// zones, and the Utah state plane zones the UGRC tile services deliver in.
func (c CRS) projection() (projection, error) {
	switch {
	case c.Code == 4326 || c.Code == 4269:
		return geographic{}, nil
	case c.Code == 3857:
		return webMercator{}, nil
	case c.Code >= 32601 && c.Code <= 32660: // WGS84 UTM north
		return newUTM(c.Code-32600, false, wgs84), nil
	case c.Code >= 32701 && c.Code <= 32760: // WGS84 UTM south
		return newUTM(c.Code-32700, true, wgs84), nil
	case c.Code >= 26901 && c.Code <= 26923: // NAD83 UTM north
		return newUTM(c.Code-26900, false, grs80), nil
	}
	if lcc, ok := lccZones[c.Code]; ok {
		return lcc, nil
	}
	return nil, fmt.Errorf("%w: unsupported CRS EPSG:%d", ErrInvalidInput, c.Code)
}

// CoordTransformer converts coordinates between two reference systems. All
// conversions pivot through geographic lon/lat, which is exact for the
// supported projections since they share the WGS84/GRS80 ellipsoid family.
type CoordTransformer struct {
	src, dst projection
}

// NewCoordTransformer builds a converter from src to dst coordinates.
func NewCoordTransformer(src, dst CRS) (*CoordTransformer, error) {
	sp, err := src.projection()
	if err != nil {
		return nil, err
	}
	dp, err := dst.projection()
	if err != nil {
		return nil, err
	}
	return &CoordTransformer{src: sp, dst: dp}, nil
}

// Transform converts one coordinate pair from the source to the target system.
func (t *CoordTransformer) Transform(x, y float64) (float64, float64) {
	lon, lat := t.src.inverse(x, y)
	return t.dst.forward(lon, lat)
}

// Inverse converts one coordinate pair from the target back to the source system.
func (t *CoordTransformer) Inverse(x, y float64) (float64, float64) {
	lon, lat := t.dst.inverse(x, y)
	return t.src.forward(lon, lat)
}

// projection maps geographic lon/lat degrees to planar coordinates and back.
type projection interface {
	forward(lon, lat float64) (x, y float64)
	inverse(x, y float64) (lon, lat float64)
}

type ellipsoid struct {
	a  float64 // semi-major axis, meters
	f  float64 // flattening
	e2 float64 // first eccentricity squared
}

func newEllipsoid(a, invF float64) ellipsoid {
	f := 1 / invF
	return ellipsoid{a: a, f: f, e2: f * (2 - f)}
}

var (
	wgs84 = newEllipsoid(6378137.0, 298.257223563)
	grs80 = newEllipsoid(6378137.0, 298.257222101)
)

// geographic is the identity projection: coordinates are already lon/lat degrees.
type geographic struct{}

func (geographic) forward(lon, lat float64) (float64, float64) { return lon, lat }
func (geographic) inverse(x, y float64) (float64, float64)     { return x, y }

// webMercator is EPSG:3857 spherical Mercator.
type webMercator struct{}

const webMercatorRadius = 6378137.0

func (webMercator) forward(lon, lat float64) (float64, float64) {
	x := webMercatorRadius * lon * math.Pi / 180
	y := webMercatorRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

func (webMercator) inverse(x, y float64) (float64, float64) {
	lon := x / webMercatorRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/webMercatorRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}

// transverseMercator implements the USGS (Snyder) series used by UTM.
type transverseMercator struct {
	ell        ellipsoid
	lon0       float64 // central meridian, radians
	k0         float64
	falseEast  float64
	falseNorth float64
}

func newUTM(zone int, south bool, ell ellipsoid) transverseMercator {
	tm := transverseMercator{
		ell:       ell,
		lon0:      (float64(zone)*6 - 183) * math.Pi / 180,
		k0:        0.9996,
		falseEast: 500000,
	}
	if south {
		tm.falseNorth = 10000000
	}
	return tm
}

// meridionalArc returns the distance along the meridian from the equator to
// latitude phi (radians).
func (tm transverseMercator) meridionalArc(phi float64) float64 {
	a, e2 := tm.ell.a, tm.ell.e2
	e4 := e2 * e2
	e6 := e4 * e2
	return a * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}

func (tm transverseMercator) forward(lonDeg, latDeg float64) (float64, float64) {
	a, e2 := tm.ell.a, tm.ell.e2
	phi := latDeg * math.Pi / 180
	lam := lonDeg * math.Pi / 180

	ep2 := e2 / (1 - e2)
	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)
	n := a / math.Sqrt(1-e2*sinPhi*sinPhi)
	t := math.Tan(phi) * math.Tan(phi)
	c := ep2 * cosPhi * cosPhi
	aa := (lam - tm.lon0) * cosPhi

	m := tm.meridionalArc(phi)

	x := tm.falseEast + tm.k0*n*(aa+
		(1-t+c)*aa*aa*aa/6+
		(5-18*t+t*t+72*c-58*ep2)*math.Pow(aa, 5)/120)
	y := tm.falseNorth + tm.k0*(m+n*math.Tan(phi)*(aa*aa/2+
		(5-t+9*c+4*c*c)*math.Pow(aa, 4)/24+
		(61-58*t+t*t+600*c-330*ep2)*math.Pow(aa, 6)/720))
	return x, y
}

func (tm transverseMercator) inverse(x, y float64) (float64, float64) {
	a, e2 := tm.ell.a, tm.ell.e2
	ep2 := e2 / (1 - e2)

	m := (y - tm.falseNorth) / tm.k0
	mu := m / (a * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))

	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))
	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sinPhi1, cosPhi1 := math.Sin(phi1), math.Cos(phi1)
	c1 := ep2 * cosPhi1 * cosPhi1
	t1 := math.Tan(phi1) * math.Tan(phi1)
	n1 := a / math.Sqrt(1-e2*sinPhi1*sinPhi1)
	r1 := a * (1 - e2) / math.Pow(1-e2*sinPhi1*sinPhi1, 1.5)
	d := (x - tm.falseEast) / (n1 * tm.k0)

	phi := phi1 - (n1*math.Tan(phi1)/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)
	lam := tm.lon0 + (d-
		(1+2*t1+c1)*math.Pow(d, 3)/6+
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120)/cosPhi1

	return lam * 180 / math.Pi, phi * 180 / math.Pi
}

// lambertConformalConic implements the two-standard-parallel form (Snyder).
type lambertConformalConic struct {
	ell        ellipsoid
	lat1, lat2 float64 // standard parallels, radians
	lat0, lon0 float64 // origin, radians
	falseEast  float64
	falseNorth float64

	// derived
	n, bigF, rho0 float64
}

func newLCC(ell ellipsoid, lat1, lat2, lat0, lon0, fe, fn float64) lambertConformalConic {
	deg := math.Pi / 180
	l := lambertConformalConic{
		ell:  ell,
		lat1: lat1 * deg, lat2: lat2 * deg,
		lat0: lat0 * deg, lon0: lon0 * deg,
		falseEast: fe, falseNorth: fn,
	}
	m1 := l.m(l.lat1)
	m2 := l.m(l.lat2)
	t0 := l.t(l.lat0)
	t1 := l.t(l.lat1)
	t2 := l.t(l.lat2)
	l.n = (math.Log(m1) - math.Log(m2)) / (math.Log(t1) - math.Log(t2))
	l.bigF = m1 / (l.n * math.Pow(t1, l.n))
	l.rho0 = l.ell.a * l.bigF * math.Pow(t0, l.n)
	return l
}

func (l lambertConformalConic) m(phi float64) float64 {
	s := math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-l.ell.e2*s*s)
}

func (l lambertConformalConic) t(phi float64) float64 {
	e := math.Sqrt(l.ell.e2)
	s := math.Sin(phi)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-e*s)/(1+e*s), e/2)
}

func (l lambertConformalConic) forward(lonDeg, latDeg float64) (float64, float64) {
	deg := math.Pi / 180
	phi := latDeg * deg
	lam := lonDeg * deg

	rho := l.ell.a * l.bigF * math.Pow(l.t(phi), l.n)
	theta := l.n * (lam - l.lon0)
	x := l.falseEast + rho*math.Sin(theta)
	y := l.falseNorth + l.rho0 - rho*math.Cos(theta)
	return x, y
}

func (l lambertConformalConic) inverse(x, y float64) (float64, float64) {
	dx := x - l.falseEast
	dy := l.rho0 - (y - l.falseNorth)

	rho := math.Sqrt(dx*dx + dy*dy)
	if l.n < 0 {
		rho = -rho
	}
	theta := math.Atan2(dx, dy)
	lam := theta/l.n + l.lon0

	tp := math.Pow(rho/(l.ell.a*l.bigF), 1/l.n)
	e := math.Sqrt(l.ell.e2)
	// Iterate the conformal latitude inversion; converges in a handful of steps.
	phi := math.Pi/2 - 2*math.Atan(tp)
	for i := 0; i < 10; i++ {
		s := math.Sin(phi)
		next := math.Pi/2 - 2*math.Atan(tp*math.Pow((1-e*s)/(1+e*s), e/2))
		if math.Abs(next-phi) < 1e-12 {
			phi = next
			break
		}
		phi = next
	}
	return lam * 180 / math.Pi, phi * 180 / math.Pi
}

// lccZones registers the NAD83 Utah state plane zones (meter-based codes).
// The UGRC raster services publish tiles in these and in UTM zone 12N.
var lccZones = map[int]lambertConformalConic{
	// Utah North
	3560: newLCC(grs80, 41.78333333333333, 40.71666666666667, 40.33333333333334, -111.5, 500000, 1000000),
	// Utah Central
	3566: newLCC(grs80, 40.65, 39.01666666666667, 38.33333333333334, -111.5, 500000, 2000000),
	// Utah South
	3572: newLCC(grs80, 38.35, 37.21666666666667, 36.66666666666666, -111.5, 500000, 3000000),
}
