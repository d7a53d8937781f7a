package arcgis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/lidar-raster-etl/internal/domain"
	"github.com/couchcryptid/lidar-raster-etl/internal/observability"
)

const (
	servicePath = "/arcgis/rest/services/Raster/MapServer"
	catalogPath = "/arcgis/rest/services/Extents/FeatureServer/0"

	layerListing = `{"layers":[{"id":3,"name":"SaltLake2020"},{"id":7,"name":"Moab2018"}]}`
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMask(t *testing.T) domain.Mask {
	t.Helper()
	doc := `{"type":"Polygon","coordinates":[[[-112,40],[-111,40],[-111,41],[-112,41],[-112,40]]]}`
	mask, err := domain.ParseMask([]byte(doc), "")
	require.NoError(t, err)
	return mask
}

// newTestClient wires a Client against an httptest server handled by fn.
func newTestClient(t *testing.T, fn http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(fn)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+servicePath, srv.URL+catalogPath, 5*time.Second, 10, testLogger(), observability.NewMetricsForTesting())
}

func TestResolveTiles(t *testing.T) {
	var metadataCalls int
	var queryParams string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == servicePath:
			metadataCalls++
			io.WriteString(w, layerListing)
		case r.URL.Path == servicePath+"/3/query":
			queryParams = r.URL.RawQuery
			io.WriteString(w, `{"type":"FeatureCollection","features":[
				{"type":"Feature","properties":{"PATH":"https://files.example.com/lidar/","TILE":"12TVK300660","EXT":".zip"},
				 "geometry":{"type":"Polygon","coordinates":[[[-111.6,40.4],[-111.5,40.4],[-111.5,40.5],[-111.6,40.5],[-111.6,40.4]]]}},
				{"type":"Feature","properties":{"PATH":"https://files.example.com/lidar/","TILE":"12TVK240680","EXT":".zip"},
				 "geometry":{"type":"Polygon","coordinates":[[[-111.8,40.6],[-111.7,40.6],[-111.7,40.7],[-111.8,40.7],[-111.8,40.6]]]}},
				{"type":"Feature","properties":{"PATH":"https://files.example.com/lidar/","TILE":"12TVK999999","EXT":".zip"},
				 "geometry":{"type":"Polygon","coordinates":[[[-109.2,38.4],[-109.1,38.4],[-109.1,38.5],[-109.2,38.5],[-109.2,38.4]]]}},
				{"type":"Feature","properties":{"TILE":"orphan"},
				 "geometry":{"type":"Polygon","coordinates":[[[-111.6,40.4],[-111.5,40.4],[-111.5,40.5],[-111.6,40.5],[-111.6,40.4]]]}}
			]}`)
		default:
			http.NotFound(w, r)
		}
	})

	tiles, err := client.ResolveTiles(context.Background(), testMask(t), "SaltLake2020")
	require.NoError(t, err)

	// The out-of-envelope and attribute-less features are dropped; the rest
	// come back sorted by tile name.
	require.Len(t, tiles, 2)
	assert.Equal(t, "12TVK240680", tiles[0].Tile)
	assert.Equal(t, "12TVK300660", tiles[1].Tile)
	assert.Equal(t, "https://files.example.com/lidar/12TVK240680.zip", tiles[0].URL())

	assert.Contains(t, queryParams, "geometryType=esriGeometryEnvelope")
	assert.Contains(t, queryParams, "inSR=4326")
	assert.Contains(t, queryParams, "f=geojson")

	// The second call hits the layer-id cache.
	_, err = client.ResolveTiles(context.Background(), testMask(t), "SaltLake2020")
	require.NoError(t, err)
	assert.Equal(t, 1, metadataCalls)
}

func TestResolveTiles_ProjectedMask(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == servicePath {
			io.WriteString(w, layerListing)
			return
		}
		assert.Equal(t, "26912", r.URL.Query().Get("inSR"))
		io.WriteString(w, `{"type":"FeatureCollection","features":[
			{"type":"Feature","properties":{"PATH":"https://files.example.com/lidar/","TILE":"12TVK240680","EXT":".zip"},
			 "geometry":{"type":"Polygon","coordinates":[[[-112,40.6],[-111.8,40.6],[-111.8,40.8],[-112,40.8],[-112,40.6]]]}}
		]}`)
	})

	// Roughly lon -111.95..-111.83, lat 40.69..40.78 in UTM zone 12N meters.
	doc := `{"type":"Polygon","coordinates":[[[420000,4505000],[430000,4505000],[430000,4515000],[420000,4515000],[420000,4505000]]]}`
	mask, err := domain.ParseMask([]byte(doc), "EPSG:26912")
	require.NoError(t, err)

	// The feature geometry comes back in WGS84 degrees, so the local envelope
	// re-check must not compare it against the mask's projected coordinates.
	tiles, err := client.ResolveTiles(context.Background(), mask, "SaltLake2020")
	require.NoError(t, err)
	require.Len(t, tiles, 1)
	assert.Equal(t, "12TVK240680", tiles[0].Tile)
}

func TestResolveTiles_PagesThroughTransferLimit(t *testing.T) {
	feature := func(name string) string {
		return fmt.Sprintf(`{"type":"Feature","properties":{"PATH":"https://files.example.com/lidar/","TILE":%q,"EXT":".zip"},"geometry":{"type":"Polygon","coordinates":[[[-111.6,40.4],[-111.5,40.4],[-111.5,40.5],[-111.6,40.5],[-111.6,40.4]]]}}`, name)
	}

	var offsets []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == servicePath {
			io.WriteString(w, layerListing)
			return
		}
		q := r.URL.Query()
		assert.Equal(t, "1000", q.Get("resultRecordCount"))
		offsets = append(offsets, q.Get("resultOffset"))

		// A full first page signals more records; the second page is short.
		var features []string
		if q.Get("resultOffset") == "0" {
			for i := 0; i < 1000; i++ {
				features = append(features, feature(fmt.Sprintf("12TVK%06d", i)))
			}
		} else {
			features = append(features, feature("12TVK999991"))
		}
		io.WriteString(w, `{"type":"FeatureCollection","features":[`+strings.Join(features, ",")+`]}`)
	})

	tiles, err := client.ResolveTiles(context.Background(), testMask(t), "SaltLake2020")
	require.NoError(t, err)
	assert.Len(t, tiles, 1001)
	assert.Equal(t, []string{"0", "1000"}, offsets)
}

func TestResolveTiles_NoTiles(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == servicePath {
			io.WriteString(w, layerListing)
			return
		}
		io.WriteString(w, `{"type":"FeatureCollection","features":[]}`)
	})

	_, err := client.ResolveTiles(context.Background(), testMask(t), "SaltLake2020")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoTilesFound)
	assert.Contains(t, err.Error(), "SaltLake2020")
}

func TestResolveTiles_UnknownLayer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, layerListing)
	})

	_, err := client.ResolveTiles(context.Background(), testMask(t), "Nowhere1999")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCatalogLookup)
}

func TestResolveTiles_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "layer exploded", http.StatusInternalServerError)
	})

	_, err := client.ResolveTiles(context.Background(), testMask(t), "SaltLake2020")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCatalogLookup)
	assert.Contains(t, err.Error(), "500")
}

func TestResolveExtensions(t *testing.T) {
	var where string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, catalogPath+"/query", r.URL.Path)
		where = r.URL.Query().Get("where")
		io.WriteString(w, `{"features":[
			{"attributes":{"Tile_Index":"SaltLake2020","File_Extension":".img"}},
			{"attributes":{"Tile_Index":"Moab2018","File_Extension":""}}
		]}`)
	})

	got, err := client.ResolveExtensions(context.Background(), []string{"SaltLake2020", "Moab2018", "O'Brien"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"SaltLake2020": ".img"}, got, "blank extensions are omitted")
	assert.Contains(t, where, "Tile_Index IN ('SaltLake2020','Moab2018','O''Brien')")
}

func TestResolveExtensions_Empty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty dataset list")
	})

	got, err := client.ResolveExtensions(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveExtensions_BadResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html>maintenance window</html>`)
	})

	_, err := client.ResolveExtensions(context.Background(), []string{"SaltLake2020"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCatalogLookup)
}

func TestPing(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.True(t, strings.HasSuffix(r.URL.Path, servicePath))
			io.WriteString(w, layerListing)
		})
		assert.NoError(t, client.Ping(context.Background()))
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		client := NewClient(srv.URL+servicePath, srv.URL+catalogPath, time.Second, 10, testLogger(), observability.NewMetricsForTesting())
		assert.Error(t, client.Ping(context.Background()))
	})
}
