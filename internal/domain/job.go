package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// DatasetState is one step of the per-dataset pipeline progression.
type DatasetState string

const (
	StatePending       DatasetState = "PENDING"
	StateTilesResolved DatasetState = "TILES_RESOLVED"
	StateDownloaded    DatasetState = "DOWNLOADED"
	StateMosaicked     DatasetState = "MOSAICKED"
	StateClipped       DatasetState = "CLIPPED"
	StateReprojected   DatasetState = "REPROJECTED"
	StateWritten       DatasetState = "WRITTEN"
	StateFailed        DatasetState = "FAILED"
)

// stateOrder is the only legal forward progression. FAILED is terminal and
// reachable from any state.
var stateOrder = []DatasetState{
	StatePending,
	StateTilesResolved,
	StateDownloaded,
	StateMosaicked,
	StateClipped,
	StateReprojected,
	StateWritten,
}

// CanTransition reports whether moving from to next is a legal step: the next
// state in order, or FAILED from any non-terminal state.
func CanTransition(from, to DatasetState) bool {
	if from == StateWritten || from == StateFailed {
		return false
	}
	if to == StateFailed {
		return true
	}
	for i, s := range stateOrder[:len(stateOrder)-1] {
		if s == from {
			return stateOrder[i+1] == to
		}
	}
	return false
}

// TileRef identifies one downloadable raster unit in a tile index: the remote
// storage path, the tile name, and the package file extension. Consumed
// exactly once by the fetcher and not retained afterward.
type TileRef struct {
	Path string
	Tile string
	Ext  string
}

// URL assembles the download location as {PATH}/{TILE}{EXT}.
func (t TileRef) URL() string {
	base := t.Path
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return fmt.Sprintf("%s/%s%s", base, t.Tile, t.Ext)
}

// JobRequest carries everything one pipeline invocation needs, regardless of
// which frontend (CLI, HTTP handler, test harness) supplies it.
type JobRequest struct {
	// MaskGeoJSON is the clip geometry as a GeoJSON document.
	MaskGeoJSON json.RawMessage `json:"mask"`
	// MaskCRS optionally names the mask's reference system; empty means
	// EPSG:4326.
	MaskCRS string `json:"mask_crs,omitempty"`
	// Datasets names the tile groups to retrieve.
	Datasets []string `json:"datasets"`
	// TargetCRS is the delivery reference system, "EPSG:<code>".
	TargetCRS string `json:"target_crs"`
	// Stitch merges the per-dataset outputs into one combined raster.
	Stitch bool `json:"stitch"`
	// OutputPath is where the final archive is written.
	OutputPath string `json:"-"`
}

// SortedDatasets returns the dataset ids deduplicated and sorted, fixing the
// processing and delivery order regardless of request order.
func (r JobRequest) SortedDatasets() []string {
	seen := make(map[string]struct{}, len(r.Datasets))
	out := make([]string, 0, len(r.Datasets))
	for _, d := range r.Datasets {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// DatasetResult is the per-dataset account in the job summary.
type DatasetResult struct {
	Dataset    string       `json:"dataset"`
	State      DatasetState `json:"state"`
	Extension  string       `json:"extension,omitempty"`
	Tiles      int          `json:"tiles"`
	Error      string       `json:"error,omitempty"`
	OutputPath string       `json:"-"`
}

// JobResult is the complete account of one invocation: which datasets
// succeeded, which failed and why, and where the archive landed.
type JobResult struct {
	JobID       string          `json:"job_id"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Datasets    []DatasetResult `json:"datasets"`
	Stitched    bool            `json:"stitched"`
	ArchivePath string          `json:"archive_path,omitempty"`
}

// Succeeded counts datasets that reached WRITTEN.
func (r JobResult) Succeeded() int {
	n := 0
	for _, d := range r.Datasets {
		if d.State == StateWritten {
			n++
		}
	}
	return n
}

// JobEvent is published on every dataset state transition when the event
// stream is enabled.
type JobEvent struct {
	JobID   string       `json:"job_id"`
	Dataset string       `json:"dataset"`
	State   DatasetState `json:"state"`
	Error   string       `json:"error,omitempty"`
	At      time.Time    `json:"at"`
}

// NewJobEvent stamps a transition with the package clock so tests can freeze
// event times.
func NewJobEvent(jobID, dataset string, state DatasetState, errMsg string) JobEvent {
	return JobEvent{
		JobID:   jobID,
		Dataset: dataset,
		State:   state,
		Error:   errMsg,
		At:      clock.Now().UTC(),
	}
}
