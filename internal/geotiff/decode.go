package geotiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/lidar-raster-etl/internal/domain"
)

// defaultNoData is assumed when a file carries no GDAL nodata tag; it matches
// the sentinel the UGRC DEM products use.
const defaultNoData = -9999

type rawEntry struct {
	datatype uint16
	count    uint32
	value    []byte // inline value field (4 bytes) or resolved external data
}

// Read decodes a GeoTIFF into a raster buffer. Both byte orders are accepted;
// sample layouts are limited to uncompressed pixel-interleaved strips of
// float32 or 8/16-bit unsigned integers.
func Read(r io.Reader) (*domain.Raster, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

// ReadFile decodes the GeoTIFF at path.
func ReadFile(path string) (*domain.Raster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func decode(data []byte) (*domain.Raster, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("geotiff: file too short")
	}
	var order binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("geotiff: bad byte-order mark %q", data[:2])
	}
	if order.Uint16(data[2:]) != 42 {
		return nil, fmt.Errorf("geotiff: not a TIFF file")
	}

	entries, err := parseIFD(data, order, order.Uint32(data[4:]))
	if err != nil {
		return nil, err
	}

	width := int(entryUint(entries, tagImageWidth, order, 0))
	height := int(entryUint(entries, tagImageLength, order, 0))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("geotiff: missing image dimensions")
	}
	bands := int(entryUint(entries, tagSamplesPerPixel, order, 1))
	if compression := entryUint(entries, tagCompression, order, compressionNone); compression != compressionNone {
		return nil, fmt.Errorf("geotiff: unsupported compression %d", compression)
	}
	if planar := entryUint(entries, tagPlanarConfig, order, 1); planar != 1 {
		return nil, fmt.Errorf("geotiff: unsupported planar configuration %d", planar)
	}

	bits := int(entryUint(entries, tagBitsPerSample, order, 8))
	format := entryUint(entries, tagSampleFormat, order, sampleFormatUint)
	bytesPerSample, convert, err := sampleDecoder(bits, format, order)
	if err != nil {
		return nil, err
	}

	tf, crs, err := georeference(entries, order)
	if err != nil {
		return nil, err
	}

	nodata := float32(defaultNoData)
	if e, ok := entries[tagGDALNoData]; ok {
		s := strings.TrimRight(string(e.value), "\x00")
		if v, perr := strconv.ParseFloat(strings.TrimSpace(s), 64); perr == nil {
			nodata = float32(v)
		}
	}

	samples, err := readStrips(data, entries, order)
	if err != nil {
		return nil, err
	}
	need := width * height * bands * bytesPerSample
	if len(samples) < need {
		return nil, fmt.Errorf("geotiff: strip data truncated: have %d bytes, need %d", len(samples), need)
	}

	out := &domain.Raster{
		Width:     width,
		Height:    height,
		Bands:     make([][]float32, bands),
		Transform: tf,
		CRS:       crs,
		NoData:    nodata,
	}
	for b := range out.Bands {
		out.Bands[b] = make([]float32, width*height)
	}
	for i := 0; i < width*height; i++ {
		for b := 0; b < bands; b++ {
			off := (i*bands + b) * bytesPerSample
			out.Bands[b][i] = convert(samples[off:])
		}
	}
	return out, nil
}

func sampleDecoder(bits int, format uint64, order binary.ByteOrder) (int, func([]byte) float32, error) {
	switch {
	case bits == 32 && format == sampleFormatFloat:
		return 4, func(b []byte) float32 { return math.Float32frombits(order.Uint32(b)) }, nil
	case bits == 8 && format == sampleFormatUint:
		return 1, func(b []byte) float32 { return float32(b[0]) }, nil
	case bits == 16 && format == sampleFormatUint:
		return 2, func(b []byte) float32 { return float32(order.Uint16(b)) }, nil
	}
	return 0, nil, fmt.Errorf("geotiff: unsupported sample layout: %d bits, format %d", bits, format)
}

func parseIFD(data []byte, order binary.ByteOrder, offset uint32) (map[uint16]rawEntry, error) {
	if int(offset)+2 > len(data) {
		return nil, fmt.Errorf("geotiff: IFD offset out of range")
	}
	count := int(order.Uint16(data[offset:]))
	entries := make(map[uint16]rawEntry, count)
	base := int(offset) + 2
	if base+12*count > len(data) {
		return nil, fmt.Errorf("geotiff: IFD truncated")
	}
	for i := 0; i < count; i++ {
		e := data[base+12*i:]
		tag := order.Uint16(e)
		datatype := order.Uint16(e[2:])
		n := order.Uint32(e[4:])
		size := typeSize(datatype) * int(n)
		value := e[8:12]
		if size > 4 {
			off := int(order.Uint32(e[8:]))
			if off+size > len(data) {
				return nil, fmt.Errorf("geotiff: tag %d data out of range", tag)
			}
			value = data[off : off+size]
		} else {
			value = value[:max(size, 0)]
		}
		entries[tag] = rawEntry{datatype: datatype, count: n, value: value}
	}
	return entries, nil
}

func typeSize(datatype uint16) int {
	switch datatype {
	case dataTypeByte, dataTypeASCII:
		return 1
	case dataTypeShort:
		return 2
	case dataTypeLong:
		return 4
	case dataTypeDouble:
		return 8
	}
	return 1
}

// entryUint reads the first value of a SHORT or LONG tag, with a default for
// absent tags.
func entryUint(entries map[uint16]rawEntry, tag uint16, order binary.ByteOrder, def uint64) uint64 {
	e, ok := entries[tag]
	if !ok || len(e.value) == 0 {
		return def
	}
	switch e.datatype {
	case dataTypeShort:
		return uint64(order.Uint16(e.value))
	case dataTypeLong:
		return uint64(order.Uint32(e.value))
	}
	return def
}

func entryUints(entries map[uint16]rawEntry, tag uint16, order binary.ByteOrder) []uint64 {
	e, ok := entries[tag]
	if !ok {
		return nil
	}
	out := make([]uint64, 0, e.count)
	switch e.datatype {
	case dataTypeShort:
		for i := 0; i+2 <= len(e.value); i += 2 {
			out = append(out, uint64(order.Uint16(e.value[i:])))
		}
	case dataTypeLong:
		for i := 0; i+4 <= len(e.value); i += 4 {
			out = append(out, uint64(order.Uint32(e.value[i:])))
		}
	}
	return out
}

func entryDoubles(entries map[uint16]rawEntry, tag uint16, order binary.ByteOrder) []float64 {
	e, ok := entries[tag]
	if !ok || e.datatype != dataTypeDouble {
		return nil
	}
	out := make([]float64, 0, e.count)
	for i := 0; i+8 <= len(e.value); i += 8 {
		out = append(out, math.Float64frombits(order.Uint64(e.value[i:])))
	}
	return out
}

func georeference(entries map[uint16]rawEntry, order binary.ByteOrder) (domain.Transform, domain.CRS, error) {
	scale := entryDoubles(entries, tagModelPixelScale, order)
	tiepoint := entryDoubles(entries, tagModelTiepoint, order)
	if len(scale) < 2 || len(tiepoint) < 6 {
		return domain.Transform{}, domain.CRS{}, fmt.Errorf("geotiff: missing georeferencing tags")
	}
	tf := domain.Transform{
		OriginX:     tiepoint[3] - tiepoint[0]*scale[0],
		OriginY:     tiepoint[4] + tiepoint[1]*scale[1],
		PixelWidth:  scale[0],
		PixelHeight: -scale[1],
	}

	keys := entryUints(entries, tagGeoKeyDirectory, order)
	code := 0
	// GeoKey directory: 4-value header then 4-value key records.
	for i := 4; i+4 <= len(keys); i += 4 {
		switch keys[i] {
		case geoKeyProjectedType, geoKeyGeographicType:
			code = int(keys[i+3])
		}
	}
	if code == 0 {
		return domain.Transform{}, domain.CRS{}, fmt.Errorf("geotiff: no EPSG code in GeoKey directory")
	}
	return tf, domain.CRS{Code: code}, nil
}

func readStrips(data []byte, entries map[uint16]rawEntry, order binary.ByteOrder) ([]byte, error) {
	offsets := entryUints(entries, tagStripOffsets, order)
	counts := entryUints(entries, tagStripByteCounts, order)
	if len(offsets) == 0 || len(offsets) != len(counts) {
		return nil, fmt.Errorf("geotiff: missing or mismatched strip tags")
	}
	var total int
	for _, c := range counts {
		total += int(c)
	}
	out := make([]byte, 0, total)
	for i := range offsets {
		start, n := int(offsets[i]), int(counts[i])
		if start+n > len(data) {
			return nil, fmt.Errorf("geotiff: strip %d out of range", i)
		}
		out = append(out, data[start:start+n]...)
	}
	return out, nil
}
