// Package geotiff reads and writes the GeoTIFF subset the tile services
// deliver and the pipeline produces: uncompressed, pixel-interleaved,
// little-endian rasters of 32-bit floats or 8/16-bit unsigned integers, with
// ModelPixelScale/ModelTiepoint georeferencing, an EPSG GeoKey, and the GDAL
// nodata tag.
package geotiff

import "strings"

const (
	dataTypeByte   = 1
	dataTypeASCII  = 2
	dataTypeShort  = 3
	dataTypeLong   = 4
	dataTypeDouble = 12

	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagSampleFormat    = 339

	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGDALNoData      = 42113

	geoKeyModelType      = 1024
	geoKeyRasterType     = 1025
	geoKeyGeographicType = 2048
	geoKeyProjectedType  = 3072

	modelTypeProjected    = 1
	modelTypeGeographic   = 2
	rasterTypePixelIsArea = 1

	compressionNone       = 1
	photometricMinIsBlack = 1
	sampleFormatUint      = 1
	sampleFormatFloat     = 3
)

// rasterExtensions lists the file extensions scanned for usable rasters after
// a tile package is extracted.
var rasterExtensions = map[string]bool{
	".tif": true, ".tiff": true, ".img": true, ".asc": true,
	".bil": true, ".bsq": true, ".bip": true, ".vrt": true,
}

// IsRasterExtension reports whether ext (with leading dot, any case) names a
// raster file format the pipeline will try to open.
func IsRasterExtension(ext string) bool {
	return rasterExtensions[strings.ToLower(ext)]
}
