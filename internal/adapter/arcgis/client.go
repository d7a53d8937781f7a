// Package arcgis queries ArcGIS REST services: the MapServer tile index that
// locates downloadable raster packages and the FeatureServer catalog that
// describes dataset products.
package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/lidar-raster-etl/internal/domain"
	"github.com/couchcryptid/lidar-raster-etl/internal/observability"
)

// tilePageSize bounds each tile index query page. Typical ArcGIS transfer
// limits are 1000 or 2000 records.
const tilePageSize = 1000

// Client resolves tile references and dataset extensions against the remote
// services. Layer-name-to-id lookups are cached because the layer listing is
// stable and shared by every job.
type Client struct {
	tileIndexURL string
	catalogURL   string
	httpClient   *http.Client
	logger       *slog.Logger
	metrics      *observability.Metrics
	layerIDs     *lruCache
}

// NewClient creates an ArcGIS client for the configured tile index and
// catalog service URLs.
func NewClient(tileIndexURL, catalogURL string, timeout time.Duration, cacheSize int, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		tileIndexURL: strings.TrimRight(tileIndexURL, "/"),
		catalogURL:   strings.TrimRight(catalogURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
		metrics:      metrics,
		layerIDs:     newLRUCache(cacheSize),
	}
}

// Ping verifies the tile index service is reachable and answering. Used by
// the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.fetchLayers(ctx)
	return err
}

// ResolveTiles finds the tile index layer named tileGroup, queries it for
// tiles whose geometry intersects the mask's bounding envelope, and returns
// their download references sorted by tile name. An empty result is reported
// as ErrNoTilesFound; the downstream clip is authoritative, so envelope
// intersection here is a conservative superset.
func (c *Client) ResolveTiles(ctx context.Context, mask domain.Mask, tileGroup string) ([]domain.TileRef, error) {
	layerID, err := c.layerID(ctx, tileGroup)
	if err != nil {
		return nil, err
	}

	bound := mask.Bound()
	// The geojson responses below carry WGS84 coordinates regardless of the
	// mask's reference, so the local envelope re-check needs a WGS84 bound.
	checkBound := bound
	if mask.CRS.Code != 4326 {
		if wgs, err := mask.To(domain.CRS{Code: 4326}); err == nil {
			checkBound = wgs.Bound()
		}
	}

	params := url.Values{
		"f":                 {"geojson"},
		"where":             {"1=1"},
		"outFields":         {"*"},
		"geometry":          {fmt.Sprintf("%f,%f,%f,%f", bound.MinX, bound.MinY, bound.MaxX, bound.MaxY)},
		"geometryType":      {"esriGeometryEnvelope"},
		"inSR":              {strconv.Itoa(mask.CRS.Code)},
		"spatialRel":        {"esriSpatialRelIntersects"},
		"returnGeometry":    {"true"},
		"resultRecordCount": {strconv.Itoa(tilePageSize)},
	}

	// The service caps each response at its transfer limit, so page with
	// resultOffset until a short page signals the end.
	var features []*geojson.Feature
	for offset := 0; ; offset += tilePageSize {
		params.Set("resultOffset", strconv.Itoa(offset))
		queryURL := fmt.Sprintf("%s/%d/query?%s", c.tileIndexURL, layerID, params.Encode())

		body, err := c.get(ctx, queryURL, "tile_query")
		if err != nil {
			return nil, err
		}

		fc, err := geojson.UnmarshalFeatureCollection(body)
		if err != nil {
			return nil, fmt.Errorf("%w: decode tile index response: %v", domain.ErrCatalogLookup, err)
		}
		features = append(features, fc.Features...)
		if len(fc.Features) < tilePageSize {
			break
		}
	}

	tiles := make([]domain.TileRef, 0, len(features))
	for _, f := range features {
		ref := domain.TileRef{
			Path: stringProp(f.Properties, "PATH"),
			Tile: stringProp(f.Properties, "TILE"),
			Ext:  stringProp(f.Properties, "EXT"),
		}
		if ref.Path == "" || ref.Tile == "" {
			c.logger.Warn("tile feature missing PATH/TILE attributes, skipping", "tile_group", tileGroup)
			continue
		}
		// The service already filtered by envelope; re-check against the
		// feature geometry's bound in case the layer ignores the filter
		// (older MapServer versions do when where=1=1 is present).
		if f.Geometry != nil {
			fb := f.Geometry.Bound()
			if _, ok := checkBound.Intersect(domain.Bound{MinX: fb.Min[0], MinY: fb.Min[1], MaxX: fb.Max[0], MaxY: fb.Max[1]}); !ok {
				continue
			}
		}
		tiles = append(tiles, ref)
	}
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].Tile < tiles[j].Tile })

	c.metrics.TilesResolved.Add(float64(len(tiles)))
	if len(tiles) == 0 {
		return nil, fmt.Errorf("%w: tile group %q", domain.ErrNoTilesFound, tileGroup)
	}
	return tiles, nil
}

// ResolveExtensions batches one catalog query for all requested dataset ids
// and returns each dataset's raster file extension. Datasets the catalog does
// not know are omitted; callers fall back to their default extension policy.
func (c *Client) ResolveExtensions(ctx context.Context, datasetIDs []string) (map[string]string, error) {
	if len(datasetIDs) == 0 {
		return map[string]string{}, nil
	}

	quoted := make([]string, len(datasetIDs))
	for i, id := range datasetIDs {
		quoted[i] = "'" + strings.ReplaceAll(id, "'", "''") + "'"
	}
	params := url.Values{
		"f":              {"json"},
		"where":          {fmt.Sprintf("Tile_Index IN (%s)", strings.Join(quoted, ","))},
		"outFields":      {"Tile_Index,File_Extension"},
		"returnGeometry": {"false"},
	}
	queryURL := fmt.Sprintf("%s/query?%s", c.catalogURL, params.Encode())

	body, err := c.get(ctx, queryURL, "catalog_query")
	if err != nil {
		return nil, err
	}

	var resp catalogResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode catalog response: %v", domain.ErrCatalogLookup, err)
	}

	out := make(map[string]string, len(resp.Features))
	for _, f := range resp.Features {
		if f.Attributes.TileIndex == "" || f.Attributes.FileExtension == "" {
			continue
		}
		out[f.Attributes.TileIndex] = f.Attributes.FileExtension
	}
	return out, nil
}

// layerID resolves a tile group name to its numeric layer id via the service
// metadata listing, consulting the cache first.
func (c *Client) layerID(ctx context.Context, tileGroup string) (int, error) {
	if id, ok := c.layerIDs.get(tileGroup); ok {
		c.metrics.LayerCache.WithLabelValues("hit").Inc()
		return id, nil
	}
	c.metrics.LayerCache.WithLabelValues("miss").Inc()

	layers, err := c.fetchLayers(ctx)
	if err != nil {
		return 0, err
	}
	for _, l := range layers {
		if l.Name == tileGroup {
			c.layerIDs.put(tileGroup, l.ID)
			return l.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: no layer named %q in tile index", domain.ErrCatalogLookup, tileGroup)
}

func (c *Client) fetchLayers(ctx context.Context) ([]layer, error) {
	body, err := c.get(ctx, c.tileIndexURL+"?f=json", "layer_listing")
	if err != nil {
		return nil, err
	}
	var resp metadataResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode service metadata: %v", domain.ErrCatalogLookup, err)
	}
	return resp.Layers, nil
}

func (c *Client) get(ctx context.Context, fullURL, query string) ([]byte, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.CatalogRequests.WithLabelValues(query, "error").Inc()
		return nil, fmt.Errorf("%w: %s request: %v", domain.ErrCatalogLookup, query, err)
	}
	defer resp.Body.Close()

	c.metrics.CatalogDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		c.metrics.CatalogRequests.WithLabelValues(query, "error").Inc()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: %s returned status %d: %s", domain.ErrCatalogLookup, query, resp.StatusCode, truncate(body, 200))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.CatalogRequests.WithLabelValues(query, "error").Inc()
		return nil, fmt.Errorf("%w: read %s response: %v", domain.ErrCatalogLookup, query, err)
	}
	c.metrics.CatalogRequests.WithLabelValues(query, "success").Inc()
	return body, nil
}

func stringProp(props geojson.Properties, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// ArcGIS REST response types.

type metadataResponse struct {
	Layers []layer `json:"layers"`
}

type layer struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type catalogResponse struct {
	Features []catalogFeature `json:"features"`
}

type catalogFeature struct {
	Attributes struct {
		TileIndex     string `json:"Tile_Index"`
		FileExtension string `json:"File_Extension"`
	} `json:"attributes"`
}
