// Package fetch downloads packaged raster tiles and extracts them into a
// dataset's working directory.
package fetch

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/lidar-raster-etl/internal/domain"
	"github.com/couchcryptid/lidar-raster-etl/internal/geotiff"
	"github.com/couchcryptid/lidar-raster-etl/internal/observability"
)

// Fetcher streams tile packages to disk and unpacks them. Fetching the same
// tile twice overwrites the previously extracted files.
type Fetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewFetcher creates a tile fetcher with the given request timeout.
func NewFetcher(timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// Fetch downloads the tile package, extracts every entry into destDir, and
// returns the extracted file paths. The downloaded package is deleted whether
// or not extraction succeeds; partially extracted files are left for the
// caller's directory re-scan.
func (f *Fetcher) Fetch(ctx context.Context, tile domain.TileRef, destDir string) ([]string, error) {
	pkgPath, err := f.download(ctx, tile, destDir)
	if err != nil {
		f.metrics.DownloadErrors.Inc()
		return nil, err
	}
	defer os.Remove(pkgPath)

	paths, err := extract(pkgPath, destDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrExtraction, tile.URL(), err)
	}

	f.metrics.TilesDownloaded.Inc()
	f.logger.Debug("tile fetched", "url", tile.URL(), "files", len(paths))
	return paths, nil
}

func (f *Fetcher) download(ctx context.Context, tile domain.TileRef, destDir string) (string, error) {
	url := tile.URL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrDownload, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s returned status %d", domain.ErrDownload, url, resp.StatusCode)
	}

	out, err := os.Create(filepath.Join(destDir, tile.Tile+tile.Ext))
	if err != nil {
		return "", fmt.Errorf("create package file: %w", err)
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("%w: %s: %v", domain.ErrDownload, url, err)
	}

	f.metrics.DownloadBytes.Add(float64(n))
	return out.Name(), nil
}

// extract unpacks a zip package into destDir, flattening any directory
// structure. Entry names are sanitized so a package cannot write outside the
// destination.
func extract(pkgPath, destDir string) ([]string, error) {
	zr, err := zip.OpenReader(pkgPath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var paths []string
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(filepath.Clean(entry.Name))
		if name == "." || name == ".." {
			continue
		}
		dest := filepath.Join(destDir, name)

		src, err := entry.Open()
		if err != nil {
			return paths, err
		}
		out, err := os.Create(dest)
		if err != nil {
			src.Close()
			return paths, err
		}
		_, err = io.Copy(out, src)
		src.Close()
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, dest)
	}
	return paths, nil
}

// ScanRasters lists raster files in dir, sorted by path for deterministic
// mosaic ordering. When ext is non-empty only files with that extension are
// returned; otherwise any known raster extension matches. The directory is
// re-scanned rather than trusting the extraction manifest because packages
// sometimes nest sidecar files alongside the rasters.
func ScanRasters(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fileExt := strings.ToLower(filepath.Ext(e.Name()))
		if ext != "" {
			if fileExt != strings.ToLower(ext) {
				continue
			}
		} else if !geotiff.IsRasterExtension(fileExt) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
