package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/couchcryptid/lidar-raster-etl/internal/domain"
)

var enc = binary.LittleEndian

type ifdEntry struct {
	tag      uint16
	datatype uint16
	count    uint32
	data     []byte
}

// Write encodes r as a single-strip float32 GeoTIFF. Output depends only on
// the raster contents, so identical rasters encode to identical bytes.
func Write(w io.Writer, r *domain.Raster) error {
	if r.Width <= 0 || r.Height <= 0 || len(r.Bands) == 0 {
		return fmt.Errorf("geotiff: degenerate raster %dx%d with %d bands", r.Width, r.Height, len(r.Bands))
	}

	header := []byte{'I', 'I', 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00}
	if _, err := w.Write(header); err != nil {
		return err
	}

	bands := len(r.Bands)
	pixels := make([]byte, 4*bands*r.Width*r.Height)
	for i := 0; i < r.Width*r.Height; i++ {
		for b := 0; b < bands; b++ {
			enc.PutUint32(pixels[4*(i*bands+b):], math.Float32bits(r.Bands[b][i]))
		}
	}

	var entries []ifdEntry
	addEntry := func(tag, datatype uint16, count uint32, data []byte) {
		entries = append(entries, ifdEntry{tag, datatype, count, data})
	}

	bits := make([]uint16, bands)
	formats := make([]uint16, bands)
	for i := range bits {
		bits[i] = 32
		formats[i] = sampleFormatFloat
	}

	addEntry(tagImageWidth, dataTypeLong, 1, enc32(uint32(r.Width)))
	addEntry(tagImageLength, dataTypeLong, 1, enc32(uint32(r.Height)))
	addEntry(tagBitsPerSample, dataTypeShort, uint32(bands), enc16s(bits))
	addEntry(tagCompression, dataTypeShort, 1, enc16(compressionNone))
	addEntry(tagPhotometric, dataTypeShort, 1, enc16(photometricMinIsBlack))
	addEntry(tagSamplesPerPixel, dataTypeShort, 1, enc16(uint16(bands)))
	addEntry(tagRowsPerStrip, dataTypeLong, 1, enc32(uint32(r.Height)))
	addEntry(tagPlanarConfig, dataTypeShort, 1, enc16(1))
	addEntry(tagSampleFormat, dataTypeShort, uint32(bands), enc16s(formats))

	// Placeholders patched once the pixel offset is known.
	addEntry(tagStripOffsets, dataTypeLong, 1, make([]byte, 4))
	addEntry(tagStripByteCounts, dataTypeLong, 1, enc32(uint32(len(pixels))))

	// Georeferencing: pixel scale + one tiepoint anchoring raster (0,0) to
	// the transform origin.
	tf := r.Transform
	addEntry(tagModelPixelScale, dataTypeDouble, 3,
		encDoubles([]float64{tf.PixelWidth, math.Abs(tf.PixelHeight), 0}))
	addEntry(tagModelTiepoint, dataTypeDouble, 6,
		encDoubles([]float64{0, 0, 0, tf.OriginX, tf.OriginY, 0}))
	keys := geoKeys(r.CRS)
	addEntry(tagGeoKeyDirectory, dataTypeShort, uint32(len(keys)), enc16s(keys))
	nodata := append([]byte(strconv.FormatFloat(float64(r.NoData), 'g', -1, 32)), 0)
	addEntry(tagGDALNoData, dataTypeASCII, uint32(len(nodata)), nodata)

	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	ifdSize := 2 + 12*len(entries) + 4
	valueDataOffset := 8 + ifdSize

	var largeData bytes.Buffer
	for i := range entries {
		e := &entries[i]
		if len(e.data) > 4 {
			offset := uint32(valueDataOffset + largeData.Len())
			largeData.Write(e.data)
			e.data = enc32(offset)
		}
	}

	pixelsOffset := uint32(valueDataOffset + largeData.Len())
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			entries[i].data = enc32(pixelsOffset)
		}
	}

	if err := binary.Write(w, enc, uint16(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := binary.Write(w, enc, e.tag); err != nil {
			return err
		}
		if err := binary.Write(w, enc, e.datatype); err != nil {
			return err
		}
		if err := binary.Write(w, enc, e.count); err != nil {
			return err
		}
		var val [4]byte
		copy(val[:], e.data)
		if _, err := w.Write(val[:]); err != nil {
			return err
		}
	}
	if err := binary.Write(w, enc, uint32(0)); err != nil {
		return err
	}
	if _, err := largeData.WriteTo(w); err != nil {
		return err
	}
	_, err := w.Write(pixels)
	return err
}

// WriteFile encodes r to path, truncating any existing file.
func WriteFile(path string, r *domain.Raster) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// geoKeys builds the minimal GeoKey directory: model type, raster type, and
// the EPSG code under the geographic or projected key as appropriate.
func geoKeys(crs domain.CRS) []uint16 {
	modelType := uint16(modelTypeProjected)
	codeKey := uint16(geoKeyProjectedType)
	if crs.IsGeographic() {
		modelType = modelTypeGeographic
		codeKey = geoKeyGeographicType
	}
	return []uint16{
		1, 1, 0, 3, // version, revision, minor, key count
		geoKeyModelType, 0, 1, modelType,
		geoKeyRasterType, 0, 1, rasterTypePixelIsArea,
		codeKey, 0, 1, uint16(crs.Code),
	}
}

func enc16(v uint16) []byte {
	b := make([]byte, 2)
	enc.PutUint16(b, v)
	return b
}

func enc32(v uint32) []byte {
	b := make([]byte, 4)
	enc.PutUint32(b, v)
	return b
}

func enc16s(vs []uint16) []byte {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		enc.PutUint16(b[i*2:], v)
	}
	return b
}

func encDoubles(vs []float64) []byte {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		enc.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return b
}
