// Package domain models LiDAR raster retrieval: mask geometry, tile
// references, the in-memory raster buffer, and the mosaic/clip/reproject
// engine that turns downloaded tiles into a deliverable surface.
//
// # Data Source
//
// Tiles come from ArcGIS MapServer/FeatureServer tile indexes in the UGRC
// style (https://gis.utah.gov/). A tile index layer is a polygon feature
// class where each feature describes one downloadable raster package via
// three attributes:
//
//	PATH  base URL of the storage location
//	TILE  tile name (also the package's basename)
//	EXT   package extension, e.g. ".zip"
//
// The package at {PATH}/{TILE}{EXT} is a zip archive holding one or more
// raster files. A companion catalog layer maps dataset identifiers to the
// raster file extension found inside the packages (Tile_Index,
// File_Extension attributes).
//
// # Raster Buffer Conventions
//
// A Raster pairs band data with an affine Transform and a CRS. The transform
// follows the GDAL/GeoTIFF north-up convention: positive pixel width,
// negative pixel height, origin at the outer corner of pixel (0,0). Every
// engine stage maintains the invariant that the transform's origin and scale
// map pixel (0,0) to a coordinate within or bordering the clip geometry's
// bounds.
//
// Nodata is a sentinel value carried on the raster. The engine never
// interpolates across nodata: merge skips it, clip writes it outside the
// polygons, and reprojection drops neighbors holding it from the
// interpolation weights.
//
// # Determinism
//
// All three engine operations are pure functions of their inputs. Overlap
// resolution during merge depends only on the input ordering, so the
// orchestrator sorts tile files by path before mosaicking; repeated runs over
// the same inputs produce numerically identical rasters.
//
// # Reference Systems
//
// Coordinate conversion pivots through geographic lon/lat using closed-form
// projection math (Snyder series for transverse Mercator, two-parallel
// Lambert conformal conic for the Utah state plane zones, spherical
// Web Mercator). The supported EPSG codes cover what the UGRC services
// publish and what callers request in practice; anything else is rejected at
// input validation.
package domain
