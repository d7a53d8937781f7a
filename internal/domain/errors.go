package domain

import "errors"

// Sentinel errors classifying pipeline failures. Adapters and the orchestrator
// wrap these with context via fmt.Errorf("...: %w", ...); callers classify with
// errors.Is to decide whether a failure is the caller's fault (bad input), an
// upstream service's fault, or an empty-result condition.
var (
	// ErrInvalidInput marks bad caller input: malformed geometry, unknown
	// CRS, or an empty dataset list. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCatalogLookup marks a failed or unreachable catalog/tile-index
	// service response.
	ErrCatalogLookup = errors.New("catalog lookup failed")

	// ErrDownload marks a network or HTTP status failure while fetching a
	// tile package.
	ErrDownload = errors.New("tile download failed")

	// ErrExtraction marks a corrupt or non-archive tile package.
	ErrExtraction = errors.New("tile extraction failed")

	// ErrNoTilesFound reports an empty tile-index query result. Non-fatal
	// to the job; the dataset is skipped.
	ErrNoTilesFound = errors.New("no tiles found")

	// ErrNoRastersFound reports that no usable raster files were present
	// after extraction, or that a mosaic was requested over zero inputs.
	ErrNoRastersFound = errors.New("no rasters found")

	// ErrPackaging marks a failure while assembling the output archive.
	// Fatal: the job must not deliver a partial archive.
	ErrPackaging = errors.New("packaging failed")
)
