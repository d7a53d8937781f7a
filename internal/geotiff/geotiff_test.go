package geotiff

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/lidar-raster-etl/internal/domain"
)

func demRaster() *domain.Raster {
	tf := domain.Transform{OriginX: 425000, OriginY: 4513000, PixelWidth: 0.5, PixelHeight: -0.5}
	r := domain.NewRaster(8, 6, 1, tf, domain.CRS{Code: 26912}, -9999)
	for row := 0; row < r.Height; row++ {
		for col := 0; col < r.Width; col++ {
			r.Set(0, col, row, float32(1400)+float32(row*r.Width+col)*0.25)
		}
	}
	r.Set(0, 3, 2, r.NoData)
	return r
}

func TestWriteRead_RoundTrip(t *testing.T) {
	src := demRaster()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, src))

	got, err := Read(&buf)
	require.NoError(t, err)

	assert.Equal(t, src.Width, got.Width)
	assert.Equal(t, src.Height, got.Height)
	assert.Equal(t, src.CRS, got.CRS)
	assert.Equal(t, src.NoData, got.NoData)
	assert.InDelta(t, src.Transform.OriginX, got.Transform.OriginX, 1e-9)
	assert.InDelta(t, src.Transform.OriginY, got.Transform.OriginY, 1e-9)
	assert.InDelta(t, src.Transform.PixelWidth, got.Transform.PixelWidth, 1e-12)
	assert.InDelta(t, src.Transform.PixelHeight, got.Transform.PixelHeight, 1e-12)
	assert.Equal(t, src.Bands, got.Bands)
}

func TestWriteRead_GeographicCRS(t *testing.T) {
	tf := domain.Transform{OriginX: -112, OriginY: 41, PixelWidth: 0.001, PixelHeight: -0.001}
	src := domain.NewRaster(4, 4, 1, tf, domain.CRS{Code: 4326}, -9999)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, src))

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, 4326, got.CRS.Code)
}

func TestWrite_Deterministic(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, Write(&a, demRaster()))
	require.NoError(t, Write(&b, demRaster()))

	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestWrite_RejectsDegenerateRaster(t *testing.T) {
	r := &domain.Raster{Width: 0, Height: 4, Bands: [][]float32{{}}}

	var buf bytes.Buffer
	require.Error(t, Write(&buf, r))
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dem.tif")
	src := demRaster()

	require.NoError(t, WriteFile(path, src))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, src.Bands, got.Bands)
}

func TestRead_RejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"empty":          {},
		"too short":      {'I', 'I'},
		"bad order mark": []byte("XXXXXXXXXXXXXXXX"),
		"bad magic":      {'I', 'I', 0x2B, 0x00, 8, 0, 0, 0, 0, 0},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(data))
			assert.Error(t, err)
		})
	}
}

func TestRead_RejectsMissingGeoreferencing(t *testing.T) {
	// A structurally valid TIFF with no ModelPixelScale/ModelTiepoint must be
	// refused rather than silently producing an unanchored raster.
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, demRaster()))
	data := buf.Bytes()

	// Blank out the ModelPixelScale tag id in the IFD.
	count := int(enc.Uint16(data[8:]))
	found := false
	for i := 0; i < count; i++ {
		entry := 10 + 12*i
		if enc.Uint16(data[entry:]) == tagModelPixelScale {
			enc.PutUint16(data[entry:], 0xFFFE)
			found = true
			break
		}
	}
	require.True(t, found, "encoded file should carry a pixel scale tag")

	_, err := decode(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "georeferencing")
}

func TestRead_TruncatedStrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, demRaster()))
	data := buf.Bytes()

	_, err := decode(data[:len(data)-16])
	require.Error(t, err)
}

func TestIsRasterExtension(t *testing.T) {
	assert.True(t, IsRasterExtension(".tif"))
	assert.True(t, IsRasterExtension(".TIFF"))
	assert.True(t, IsRasterExtension(".img"))
	assert.True(t, IsRasterExtension(".asc"))
	assert.False(t, IsRasterExtension(".zip"))
	assert.False(t, IsRasterExtension(".xml"))
}
