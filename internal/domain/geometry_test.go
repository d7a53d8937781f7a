package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const squareGeoJSON = `{"type":"Polygon","coordinates":[[[-112,40],[-111,40],[-111,41],[-112,41],[-112,40]]]}`

func TestParseMask_BareGeometry(t *testing.T) {
	mask, err := ParseMask([]byte(squareGeoJSON), "")
	require.NoError(t, err)

	assert.Equal(t, DefaultMaskCRS, mask.CRS)
	require.Len(t, mask.Geometry, 1)
	assert.Equal(t, Bound{MinX: -112, MinY: 40, MaxX: -111, MaxY: 41}, mask.Bound())
}

func TestParseMask_Feature(t *testing.T) {
	doc := `{"type":"Feature","properties":{"name":"aoi"},"geometry":` + squareGeoJSON + `}`

	mask, err := ParseMask([]byte(doc), "EPSG:4326")
	require.NoError(t, err)
	require.Len(t, mask.Geometry, 1)
}

func TestParseMask_FeatureCollection(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{},"geometry":` + squareGeoJSON + `},
		{"type":"Feature","properties":{},"geometry":{"type":"MultiPolygon","coordinates":[[[[-110,39],[-109,39],[-109,40],[-110,40],[-110,39]]]]}}
	]}`

	mask, err := ParseMask([]byte(doc), "")
	require.NoError(t, err)
	assert.Len(t, mask.Geometry, 2, "features are combined into one multipolygon")
}

func TestParseMask_RejectsNonPolygon(t *testing.T) {
	_, err := ParseMask([]byte(`{"type":"Point","coordinates":[-111,40]}`), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseMask_RejectsGarbage(t *testing.T) {
	_, err := ParseMask([]byte(`not json`), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseMask_RejectsBadCRSHint(t *testing.T) {
	_, err := ParseMask([]byte(squareGeoJSON), "EPSG:9999")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMask_Contains(t *testing.T) {
	mask, err := ParseMask([]byte(squareGeoJSON), "")
	require.NoError(t, err)

	assert.True(t, mask.Contains(-111.5, 40.5))
	assert.False(t, mask.Contains(-113, 40.5))
	assert.False(t, mask.Contains(-111.5, 42))
}

func TestMask_To(t *testing.T) {
	mask, err := ParseMask([]byte(squareGeoJSON), "")
	require.NoError(t, err)

	utm, err := mask.To(CRS{Code: 26912})
	require.NoError(t, err)
	assert.Equal(t, 26912, utm.CRS.Code)

	b := utm.Bound()
	assert.Greater(t, b.MinX, 100000.0, "coordinates become meters")
	assert.Greater(t, b.MinY, 4.0e6)

	same, err := utm.To(CRS{Code: 26912})
	require.NoError(t, err)
	assert.Equal(t, utm.Geometry, same.Geometry, "no-op when already in the target system")
}

func TestMask_To_Unsupported(t *testing.T) {
	mask, err := ParseMask([]byte(squareGeoJSON), "")
	require.NoError(t, err)

	_, err = mask.To(CRS{Code: 12345})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
