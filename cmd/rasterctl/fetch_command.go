package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/lidar-raster-etl/internal/adapter/arcgis"
	"github.com/couchcryptid/lidar-raster-etl/internal/adapter/fetch"
	"github.com/couchcryptid/lidar-raster-etl/internal/config"
	"github.com/couchcryptid/lidar-raster-etl/internal/domain"
	"github.com/couchcryptid/lidar-raster-etl/internal/observability"
	"github.com/couchcryptid/lidar-raster-etl/internal/pipeline"
)

func newFetchCommand() *cobra.Command {
	var (
		jobPath   string
		maskPath  string
		maskCRS   string
		datasets  []string
		targetCRS string
		stitch    bool
		outPath   string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run a retrieval job locally and write the archive to disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(jobPath, maskPath, maskCRS, datasets, targetCRS, stitch, outPath, cmd.Flags().Changed("stitch"))
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger := observability.NewLogger(cfg)
			metrics := observability.NewMetrics()
			client := arcgis.NewClient(cfg.TileIndexURL, cfg.CatalogURL, cfg.RequestTimeout, cfg.LayerCacheSize, logger, metrics)
			fetcher := fetch.NewFetcher(cfg.RequestTimeout, logger, metrics)

			orchestrator, err := pipeline.New(cfg, client, client, fetcher, nil, logger, metrics)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			result, runErr := orchestrator.Run(ctx, req)
			if len(result.Datasets) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), renderResult(result))
			}
			if runErr != nil {
				return runErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archive written to %s\n", result.ArchivePath)
			return nil
		},
	}

	cmd.Flags().StringVar(&jobPath, "job", "", "TOML job file describing the request")
	cmd.Flags().StringVar(&maskPath, "mask", "", "GeoJSON file with the area of interest")
	cmd.Flags().StringVar(&maskCRS, "mask-crs", "", "Reference system of the mask (default EPSG:4326)")
	cmd.Flags().StringSliceVar(&datasets, "datasets", nil, "Tile group names to retrieve")
	cmd.Flags().StringVar(&targetCRS, "target-crs", "", "Delivery reference system, e.g. EPSG:26912")
	cmd.Flags().BoolVar(&stitch, "stitch", false, "Merge all datasets into one combined raster")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Archive output path")

	return cmd
}

// buildRequest merges the job file, when given, with command-line flags.
// Flags win over file values; --stitch only overrides when set explicitly.
func buildRequest(jobPath, maskPath, maskCRS string, datasets []string, targetCRS string, stitch bool, outPath string, stitchSet bool) (domain.JobRequest, error) {
	var jf jobFile
	if jobPath != "" {
		var err error
		jf, err = loadJobFile(jobPath)
		if err != nil {
			return domain.JobRequest{}, err
		}
	}

	if maskPath == "" {
		maskPath = jf.Mask
	}
	if maskCRS == "" {
		maskCRS = jf.MaskCRS
	}
	if len(datasets) == 0 {
		datasets = jf.Datasets
	}
	if targetCRS == "" {
		targetCRS = jf.TargetCRS
	}
	if outPath == "" {
		outPath = jf.Out
	}
	if !stitchSet {
		stitch = jf.Stitch
	}

	if maskPath == "" {
		return domain.JobRequest{}, fmt.Errorf("%w: no mask given", domain.ErrInvalidInput)
	}
	if outPath == "" {
		return domain.JobRequest{}, fmt.Errorf("%w: no output path given", domain.ErrInvalidInput)
	}
	maskData, err := os.ReadFile(maskPath)
	if err != nil {
		return domain.JobRequest{}, fmt.Errorf("%w: read mask: %v", domain.ErrInvalidInput, err)
	}

	return domain.JobRequest{
		MaskGeoJSON: maskData,
		MaskCRS:     maskCRS,
		Datasets:    datasets,
		TargetCRS:   targetCRS,
		Stitch:      stitch,
		OutputPath:  outPath,
	}, nil
}
