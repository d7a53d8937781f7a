package http

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/lidar-raster-etl/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubRunner writes a tiny archive to the request's output path and returns a
// canned result, or fails with err.
type stubRunner struct {
	err error
	got domain.JobRequest
}

func (s *stubRunner) Run(_ context.Context, req domain.JobRequest) (domain.JobResult, error) {
	s.got = req
	result := domain.JobResult{
		JobID: "job-test",
		Datasets: []domain.DatasetResult{
			{Dataset: "SaltLake2020", State: domain.StateWritten, Tiles: 3},
		},
	}
	if s.err != nil {
		return result, s.err
	}

	f, err := os.Create(req.OutputPath)
	if err != nil {
		return result, err
	}
	zw := zip.NewWriter(f)
	w, _ := zw.Create("SaltLake2020.tif")
	io.WriteString(w, "raster bytes")
	zw.Close()
	f.Close()
	result.ArchivePath = req.OutputPath
	return result, nil
}

type stubChecker struct{ err error }

func (s *stubChecker) CheckReadiness(context.Context) error { return s.err }

func newTestServer(runner JobRunner, checker ReadinessChecker) *Server {
	return NewServer(":0", runner, checker, testLogger())
}

func jobBody(t *testing.T) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"mask":       json.RawMessage(`{"type":"Polygon","coordinates":[[[-112,40],[-111,40],[-111,41],[-112,41],[-112,40]]]}`),
		"datasets":   []string{"SaltLake2020"},
		"target_crs": "EPSG:26912",
	})
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func TestHandleJob(t *testing.T) {
	runner := &stubRunner{}
	srv := newTestServer(runner, &stubChecker{})

	req := httptest.NewRequest(http.MethodPost, "/jobs", jobBody(t))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, "job-test", rec.Header().Get("X-Job-Id"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "rasters-job-test.zip")

	var summary domain.JobResult
	require.NoError(t, json.Unmarshal([]byte(rec.Header().Get("X-Job-Summary")), &summary))
	assert.Equal(t, 1, summary.Succeeded())

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "SaltLake2020.tif", zr.File[0].Name)

	assert.Equal(t, []string{"SaltLake2020"}, runner.got.Datasets)
	assert.NotEmpty(t, runner.got.OutputPath, "server supplies the archive path")
}

func TestHandleJob_BadBody(t *testing.T) {
	srv := newTestServer(&stubRunner{}, &stubChecker{})

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleJob_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", domain.ErrInvalidInput, http.StatusBadRequest},
		{"no tiles", domain.ErrNoTilesFound, http.StatusUnprocessableEntity},
		{"no rasters", domain.ErrNoRastersFound, http.StatusUnprocessableEntity},
		{"catalog", domain.ErrCatalogLookup, http.StatusBadGateway},
		{"download", domain.ErrDownload, http.StatusBadGateway},
		{"internal", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(&stubRunner{err: tc.err}, &stubChecker{})

			req := httptest.NewRequest(http.MethodPost, "/jobs", jobBody(t))
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body["error"], tc.err.Error())
			assert.Equal(t, "job-test", body["job_id"])
		})
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(&stubRunner{}, &stubChecker{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestHandleReady(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		srv := newTestServer(&stubRunner{}, &stubChecker{})

		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("not ready", func(t *testing.T) {
		srv := newTestServer(&stubRunner{}, &stubChecker{err: errors.New("tile index unreachable")})

		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "tile index unreachable")
	})
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(&stubRunner{}, &stubChecker{})

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
