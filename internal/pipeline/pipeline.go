// Package pipeline orchestrates raster retrieval jobs: resolve tiles, fetch,
// mosaic, clip, reproject, write, and package, per requested dataset.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/lidar-raster-etl/internal/adapter/fetch"
	"github.com/couchcryptid/lidar-raster-etl/internal/config"
	"github.com/couchcryptid/lidar-raster-etl/internal/domain"
	"github.com/couchcryptid/lidar-raster-etl/internal/geotiff"
	"github.com/couchcryptid/lidar-raster-etl/internal/observability"
)

// TileResolver queries the tile index for tiles intersecting a mask.
type TileResolver interface {
	ResolveTiles(ctx context.Context, mask domain.Mask, tileGroup string) ([]domain.TileRef, error)

	// Ping reports whether the tile index service is reachable.
	Ping(ctx context.Context) error
}

// CatalogLookup resolves dataset ids to raster file extensions in one
// batched query.
type CatalogLookup interface {
	ResolveExtensions(ctx context.Context, datasetIDs []string) (map[string]string, error)
}

// TileFetcher downloads one tile package and extracts it into a directory.
type TileFetcher interface {
	Fetch(ctx context.Context, tile domain.TileRef, destDir string) ([]string, error)
}

// EventPublisher receives dataset state transitions. Pass nil to the
// orchestrator to disable event publishing.
type EventPublisher interface {
	PublishTransition(ctx context.Context, event domain.JobEvent) error
}

// Orchestrator drives one job invocation end to end. Datasets are processed
// independently in sorted order; per-dataset failures are accumulated into
// the job result instead of aborting the loop, unless ContinueOnError is off.
type Orchestrator struct {
	resolver  TileResolver
	catalog   CatalogLookup
	fetcher   TileFetcher
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics

	workdirRoot     string
	keepWorkdir     bool
	mosaicPolicy    domain.MergePolicy
	resampling      domain.Resampling
	verticalScale   float64
	defaultExt      string
	continueOnError bool
}

// New creates an Orchestrator from validated configuration. publisher may be
// nil when event publishing is disabled.
func New(cfg *config.Config, resolver TileResolver, catalog CatalogLookup, fetcher TileFetcher, publisher EventPublisher, logger *slog.Logger, metrics *observability.Metrics) (*Orchestrator, error) {
	policy, err := domain.ParseMergePolicy(cfg.MosaicPolicy)
	if err != nil {
		return nil, err
	}
	resampling, err := domain.ParseResampling(cfg.Resampling)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		resolver:  resolver,
		catalog:   catalog,
		fetcher:   fetcher,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,

		workdirRoot:     cfg.WorkdirRoot,
		keepWorkdir:     cfg.KeepWorkdir,
		mosaicPolicy:    policy,
		resampling:      resampling,
		verticalScale:   cfg.VerticalScale(),
		defaultExt:      cfg.DefaultExtension,
		continueOnError: cfg.ContinueOnError,
	}, nil
}

// CheckReadiness reports whether the tile index service is reachable.
func (o *Orchestrator) CheckReadiness(ctx context.Context) error {
	return o.resolver.Ping(ctx)
}

// Run executes one job. The returned JobResult always carries the complete
// per-dataset account; err is non-nil for invalid input, an aborted job, or a
// packaging failure. The job's working directory is removed on every exit
// path unless KeepWorkdir is configured.
func (o *Orchestrator) Run(ctx context.Context, req domain.JobRequest) (domain.JobResult, error) {
	result := domain.JobResult{
		JobID:     uuid.NewString(),
		StartedAt: domain.Now().UTC(),
	}
	logger := o.logger.With("job_id", result.JobID)

	mask, targetCRS, err := validate(req)
	if err != nil {
		return result, err
	}

	o.metrics.JobsInFlight.Inc()
	defer o.metrics.JobsInFlight.Dec()
	start := time.Now()
	defer func() { o.metrics.JobDuration.Observe(time.Since(start).Seconds()) }()

	ws, err := newWorkspace(o.workdirRoot, result.JobID)
	if err != nil {
		return result, fmt.Errorf("create job workspace: %w", err)
	}
	if !o.keepWorkdir {
		defer ws.cleanup(logger)
	}

	datasets := req.SortedDatasets()
	logger.Info("job started", "datasets", datasets, "target_crs", req.TargetCRS, "stitch", req.Stitch)

	extensions := o.resolveExtensions(ctx, datasets, logger)

	for _, dataset := range datasets {
		if err := ctx.Err(); err != nil {
			result.FinishedAt = domain.Now().UTC()
			return result, err
		}
		ds, dsErr := o.runDataset(ctx, result.JobID, ws, dataset, extensions[dataset], mask, targetCRS, logger)
		result.Datasets = append(result.Datasets, ds)
		if dsErr != nil && !o.continueOnError {
			result.FinishedAt = domain.Now().UTC()
			o.metrics.JobsCompleted.WithLabelValues("failed").Inc()
			return result, fmt.Errorf("dataset %s failed: %w", dataset, dsErr)
		}
	}

	deliverables := writtenOutputs(result.Datasets)
	if req.Stitch && len(deliverables) > 1 {
		stitched, err := o.stitch(ws, deliverables)
		if err != nil {
			logger.Error("stitch failed, delivering per-dataset rasters", "error", err)
		} else {
			deliverables = []string{stitched}
			result.Stitched = true
		}
	}

	result.FinishedAt = domain.Now().UTC()

	if len(deliverables) == 0 {
		o.metrics.JobsCompleted.WithLabelValues("failed").Inc()
		return result, fmt.Errorf("%w: no dataset succeeded", domain.ErrNoRastersFound)
	}

	if err := o.packageArchive(deliverables, req.OutputPath); err != nil {
		o.metrics.JobsCompleted.WithLabelValues("failed").Inc()
		return result, err
	}
	result.ArchivePath = req.OutputPath

	outcome := "success"
	if result.Succeeded() < len(datasets) {
		outcome = "partial"
	}
	o.metrics.JobsCompleted.WithLabelValues(outcome).Inc()
	logger.Info("job finished", "outcome", outcome, "archive", result.ArchivePath)
	return result, nil
}

// validate parses and checks the request inputs, returning the mask and
// target reference system.
func validate(req domain.JobRequest) (domain.Mask, domain.CRS, error) {
	if len(req.Datasets) == 0 {
		return domain.Mask{}, domain.CRS{}, fmt.Errorf("%w: empty dataset list", domain.ErrInvalidInput)
	}
	if req.OutputPath == "" {
		return domain.Mask{}, domain.CRS{}, fmt.Errorf("%w: no output path", domain.ErrInvalidInput)
	}
	mask, err := domain.ParseMask(req.MaskGeoJSON, req.MaskCRS)
	if err != nil {
		return domain.Mask{}, domain.CRS{}, err
	}
	targetCRS, err := domain.ParseCRS(req.TargetCRS)
	if err != nil {
		return domain.Mask{}, domain.CRS{}, err
	}
	return mask, targetCRS, nil
}

// resolveExtensions performs the batched catalog lookup. A failed lookup is
// non-fatal: every dataset falls back to the default extension.
func (o *Orchestrator) resolveExtensions(ctx context.Context, datasets []string, logger *slog.Logger) map[string]string {
	extensions, err := o.catalog.ResolveExtensions(ctx, datasets)
	if err != nil {
		logger.Warn("catalog lookup failed, using default extension for all datasets",
			"error", err, "default", o.defaultExt)
	}
	if extensions == nil {
		extensions = make(map[string]string, len(datasets))
	}
	for _, d := range datasets {
		if extensions[d] == "" {
			extensions[d] = o.defaultExt
		}
	}
	return extensions
}

// runDataset walks one dataset through the state machine. A failure is
// recorded on the result and also returned so callers can classify it with
// errors.Is.
func (o *Orchestrator) runDataset(ctx context.Context, jobID string, ws *workspace, dataset, ext string, mask domain.Mask, targetCRS domain.CRS, logger *slog.Logger) (domain.DatasetResult, error) {
	res := domain.DatasetResult{Dataset: dataset, State: domain.StatePending, Extension: ext}
	logger = logger.With("dataset", dataset)

	advance := func(state domain.DatasetState) {
		res.State = state
		o.publish(ctx, jobID, dataset, state, "")
		logger.Debug("dataset state", "state", state)
	}
	fail := func(err error) (domain.DatasetResult, error) {
		res.State = domain.StateFailed
		res.Error = err.Error()
		o.publish(ctx, jobID, dataset, domain.StateFailed, res.Error)
		o.metrics.DatasetFailures.WithLabelValues(failureReason(err)).Inc()
		logger.Warn("dataset failed", "error", err)
		return res, err
	}

	tiles, err := timed(o.metrics, "resolve", func() ([]domain.TileRef, error) {
		return o.resolver.ResolveTiles(ctx, mask, dataset)
	})
	if err != nil {
		return fail(err)
	}
	res.Tiles = len(tiles)
	advance(domain.StateTilesResolved)

	downloadDir, err := ws.datasetDownloads(dataset)
	if err != nil {
		return fail(err)
	}
	_, err = timed(o.metrics, "download", func() (struct{}, error) {
		for _, tile := range tiles {
			if err := ctx.Err(); err != nil {
				return struct{}{}, err
			}
			if _, err := o.fetcher.Fetch(ctx, tile, downloadDir); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fail(err)
	}
	advance(domain.StateDownloaded)

	mosaic, err := timed(o.metrics, "mosaic", func() (*domain.Raster, error) {
		paths, err := fetch.ScanRasters(downloadDir, ext)
		if err != nil {
			return nil, err
		}
		return o.mosaicFiles(paths)
	})
	if err != nil {
		return fail(err)
	}
	advance(domain.StateMosaicked)

	clipped, err := timed(o.metrics, "clip", func() (*domain.Raster, error) {
		return domain.Clip(mosaic, mask)
	})
	if err != nil {
		return fail(err)
	}
	clipped.Scale(o.verticalScale)
	advance(domain.StateClipped)

	final, err := timed(o.metrics, "reproject", func() (*domain.Raster, error) {
		return domain.Reproject(clipped, targetCRS, o.resampling)
	})
	if err != nil {
		return fail(err)
	}
	advance(domain.StateReprojected)

	outPath := filepath.Join(ws.outputs, dataset+".tif")
	_, err = timed(o.metrics, "write", func() (struct{}, error) {
		return struct{}{}, geotiff.WriteFile(outPath, final)
	})
	if err != nil {
		return fail(err)
	}
	res.OutputPath = outPath
	advance(domain.StateWritten)
	return res, nil
}

// mosaicFiles opens raster files and merges them. The input list is already
// sorted by the caller, keeping overlap resolution deterministic.
func (o *Orchestrator) mosaicFiles(paths []string) (*domain.Raster, error) {
	if len(paths) == 0 {
		return nil, domain.ErrNoRastersFound
	}
	rasters := make([]*domain.Raster, 0, len(paths))
	for _, p := range paths {
		r, err := geotiff.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("open raster %s: %w", p, err)
		}
		rasters = append(rasters, r)
	}
	return domain.Merge(rasters, o.mosaicPolicy)
}

// stitch merges the per-dataset outputs into one combined raster. The inputs
// share the target CRS by construction.
func (o *Orchestrator) stitch(ws *workspace, outputs []string) (string, error) {
	combined, err := o.mosaicFiles(outputs)
	if err != nil {
		return "", fmt.Errorf("stitch datasets: %w", err)
	}
	path := filepath.Join(ws.outputs, "stitched.tif")
	if err := geotiff.WriteFile(path, combined); err != nil {
		return "", fmt.Errorf("write stitched raster: %w", err)
	}
	return path, nil
}

func (o *Orchestrator) packageArchive(paths []string, archivePath string) error {
	start := time.Now()
	err := packageOutputs(paths, archivePath)
	o.metrics.StageDuration.WithLabelValues("package").Observe(time.Since(start).Seconds())
	return err
}

func (o *Orchestrator) publish(ctx context.Context, jobID, dataset string, state domain.DatasetState, errMsg string) {
	if o.publisher == nil {
		return
	}
	event := domain.NewJobEvent(jobID, dataset, state, errMsg)
	if err := o.publisher.PublishTransition(ctx, event); err != nil {
		o.logger.Warn("publish job event failed", "error", err, "dataset", dataset, "state", state)
	}
}

// timed runs fn and records its duration under the stage label.
func timed[T any](m *observability.Metrics, stage string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return v, err
}

func writtenOutputs(datasets []domain.DatasetResult) []string {
	var out []string
	for _, d := range datasets {
		if d.State == domain.StateWritten {
			out = append(out, d.OutputPath)
		}
	}
	return out
}

// failureReason maps an error to a stable metric label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoTilesFound):
		return "no_tiles"
	case errors.Is(err, domain.ErrNoRastersFound):
		return "no_rasters"
	case errors.Is(err, domain.ErrCatalogLookup):
		return "catalog"
	case errors.Is(err, domain.ErrDownload):
		return "download"
	case errors.Is(err, domain.ErrExtraction):
		return "extraction"
	case errors.Is(err, domain.ErrInvalidInput):
		return "input"
	default:
		return "internal"
	}
}
