package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	t.Run("forward steps", func(t *testing.T) {
		steps := []DatasetState{
			StatePending, StateTilesResolved, StateDownloaded,
			StateMosaicked, StateClipped, StateReprojected, StateWritten,
		}
		for i := 0; i < len(steps)-1; i++ {
			assert.True(t, CanTransition(steps[i], steps[i+1]), "%s -> %s", steps[i], steps[i+1])
		}
	})

	t.Run("no skipping", func(t *testing.T) {
		assert.False(t, CanTransition(StatePending, StateDownloaded))
		assert.False(t, CanTransition(StateTilesResolved, StateClipped))
	})

	t.Run("no going back", func(t *testing.T) {
		assert.False(t, CanTransition(StateDownloaded, StateTilesResolved))
	})

	t.Run("failed from anywhere non-terminal", func(t *testing.T) {
		for _, s := range []DatasetState{StatePending, StateTilesResolved, StateDownloaded, StateMosaicked, StateClipped, StateReprojected} {
			assert.True(t, CanTransition(s, StateFailed), "%s -> FAILED", s)
		}
	})

	t.Run("terminal states stay terminal", func(t *testing.T) {
		assert.False(t, CanTransition(StateWritten, StateFailed))
		assert.False(t, CanTransition(StateFailed, StatePending))
		assert.False(t, CanTransition(StateFailed, StateFailed))
	})
}

func TestTileRef_URL(t *testing.T) {
	ref := TileRef{Path: "https://example.com/tiles", Tile: "12TVK240680", Ext: ".zip"}
	assert.Equal(t, "https://example.com/tiles/12TVK240680.zip", ref.URL())

	ref.Path = "https://example.com/tiles/"
	assert.Equal(t, "https://example.com/tiles/12TVK240680.zip", ref.URL(), "trailing slash is trimmed")
}

func TestJobRequest_SortedDatasets(t *testing.T) {
	req := JobRequest{Datasets: []string{"b-lidar", "a-lidar", "b-lidar", "c-lidar"}}
	assert.Equal(t, []string{"a-lidar", "b-lidar", "c-lidar"}, req.SortedDatasets())

	assert.Empty(t, JobRequest{}.SortedDatasets())
}

func TestJobResult_Succeeded(t *testing.T) {
	result := JobResult{Datasets: []DatasetResult{
		{Dataset: "a", State: StateWritten},
		{Dataset: "b", State: StateFailed},
		{Dataset: "c", State: StateWritten},
	}}
	assert.Equal(t, 2, result.Succeeded())
}

func TestNewJobEvent_UsesPackageClock(t *testing.T) {
	frozen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(frozen))
	t.Cleanup(func() { SetClock(nil) })

	event := NewJobEvent("job-1", "SaltLake2020", StateDownloaded, "")
	require.Equal(t, frozen, event.At)
	assert.Equal(t, "job-1", event.JobID)
	assert.Equal(t, "SaltLake2020", event.Dataset)
	assert.Equal(t, StateDownloaded, event.State)
	assert.Empty(t, event.Error)
}
