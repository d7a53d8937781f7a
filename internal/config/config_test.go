package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Contains(t, cfg.TileIndexURL, "mapserv.utah.gov")
	assert.Contains(t, cfg.CatalogURL, "LiDAR_Extents")
	assert.NotEmpty(t, cfg.WorkdirRoot)
	assert.False(t, cfg.KeepWorkdir)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "first", cfg.MosaicPolicy)
	assert.Equal(t, "bilinear", cfg.Resampling)
	assert.Equal(t, "meters", cfg.VerticalUnits)
	assert.Equal(t, ".tif", cfg.DefaultExtension)
	assert.True(t, cfg.ContinueOnError)
	assert.Equal(t, 100, cfg.LayerCacheSize)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "raster-job-events", cfg.KafkaTopic)
	assert.False(t, cfg.KafkaEnabled)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("TILE_INDEX_URL", "https://gis.example.com/arcgis/rest/services/Raster/MapServer")
	t.Setenv("CATALOG_URL", "https://gis.example.com/arcgis/rest/services/Extents/FeatureServer/0")
	t.Setenv("WORKDIR_ROOT", "/var/lib/raster-etl")
	t.Setenv("KEEP_WORKDIR", "true")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("REQUEST_TIMEOUT", "2m")
	t.Setenv("MOSAIC_POLICY", "mean")
	t.Setenv("RESAMPLING", "nearest")
	t.Setenv("VERTICAL_UNITS", "feet")
	t.Setenv("DEFAULT_EXTENSION", ".img")
	t.Setenv("CONTINUE_ON_ERROR", "false")
	t.Setenv("LAYER_CACHE_SIZE", "25")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_TOPIC", "custom-events")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://gis.example.com/arcgis/rest/services/Raster/MapServer", cfg.TileIndexURL)
	assert.Equal(t, "https://gis.example.com/arcgis/rest/services/Extents/FeatureServer/0", cfg.CatalogURL)
	assert.Equal(t, "/var/lib/raster-etl", cfg.WorkdirRoot)
	assert.True(t, cfg.KeepWorkdir)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 2*time.Minute, cfg.RequestTimeout)
	assert.Equal(t, "mean", cfg.MosaicPolicy)
	assert.Equal(t, "nearest", cfg.Resampling)
	assert.Equal(t, "feet", cfg.VerticalUnits)
	assert.Equal(t, ".img", cfg.DefaultExtension)
	assert.False(t, cfg.ContinueOnError)
	assert.Equal(t, 25, cfg.LayerCacheSize)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-events", cfg.KafkaTopic)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_NegativeDuration(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "-5s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REQUEST_TIMEOUT")
}

func TestLoad_InvalidVerticalUnits(t *testing.T) {
	t.Setenv("VERTICAL_UNITS", "fathoms")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VERTICAL_UNITS")
}

func TestLoad_KafkaEnabledRequiresBrokers(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", " , ")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestLoad_InvalidLayerCacheSizeFallsBack(t *testing.T) {
	t.Setenv("LAYER_CACHE_SIZE", "zero")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.LayerCacheSize)
}

func TestVerticalScale(t *testing.T) {
	assert.Equal(t, 1.0, (&Config{VerticalUnits: "meters"}).VerticalScale())
	assert.InDelta(t, 3.28084, (&Config{VerticalUnits: "feet"}).VerticalScale(), 1e-9)
}
