package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default service endpoints: the UGRC raster tile index and the LiDAR
// coverage catalog it pairs with.
const (
	defaultTileIndexURL = "https://mapserv.utah.gov/arcgis/rest/services/Raster/MapServer"
	defaultCatalogURL   = "https://services1.arcgis.com/99lidPhWCzftIe9K/ArcGIS/rest/services/LiDAR_Extents/FeatureServer/0"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	TileIndexURL string
	CatalogURL   string

	WorkdirRoot string
	KeepWorkdir bool

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration

	// Engine policies.
	MosaicPolicy     string
	Resampling       string
	VerticalUnits    string
	DefaultExtension string
	ContinueOnError  bool
	LayerCacheSize   int

	// Kafka job-event publishing (feature-flagged via KAFKA_ENABLED).
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	requestTimeout, err := parseDuration("REQUEST_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}

	kafkaEnabled := false
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		TileIndexURL: envOrDefault("TILE_INDEX_URL", defaultTileIndexURL),
		CatalogURL:   envOrDefault("CATALOG_URL", defaultCatalogURL),

		WorkdirRoot: envOrDefault("WORKDIR_ROOT", os.TempDir()),
		KeepWorkdir: os.Getenv("KEEP_WORKDIR") == "true",

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		RequestTimeout:  requestTimeout,

		MosaicPolicy:     envOrDefault("MOSAIC_POLICY", "first"),
		Resampling:       envOrDefault("RESAMPLING", "bilinear"),
		VerticalUnits:    envOrDefault("VERTICAL_UNITS", "meters"),
		DefaultExtension: envOrDefault("DEFAULT_EXTENSION", ".tif"),
		ContinueOnError:  envOrDefault("CONTINUE_ON_ERROR", "true") == "true",
		LayerCacheSize:   parseLayerCacheSize(),

		KafkaBrokers: parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "raster-job-events"),
		KafkaEnabled: kafkaEnabled,
	}

	if cfg.TileIndexURL == "" {
		return nil, errors.New("TILE_INDEX_URL is required")
	}
	if cfg.CatalogURL == "" {
		return nil, errors.New("CATALOG_URL is required")
	}
	if cfg.WorkdirRoot == "" {
		return nil, errors.New("WORKDIR_ROOT is required")
	}
	switch cfg.VerticalUnits {
	case "meters", "feet":
	default:
		return nil, fmt.Errorf("invalid VERTICAL_UNITS %q: want meters or feet", cfg.VerticalUnits)
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

// VerticalScale returns the elevation multiplier implied by VerticalUnits.
func (c *Config) VerticalScale() float64 {
	if c.VerticalUnits == "feet" {
		return 3.28084
	}
	return 1
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	s := envOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}

func parseBrokers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLayerCacheSize() int {
	if s := os.Getenv("LAYER_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 100
}
